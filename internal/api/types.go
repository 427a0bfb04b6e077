package api

import (
	"stock-availability/internal/deliverability"
	"stock-availability/internal/locator"
)

// 对外序列化模型；字段名稳定，前端与结算插件依赖
type deliverabilityResponse struct {
	Success bool                    `json:"success"`
	Data    []deliverability.Result `json:"data,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

type nearestResponse struct {
	Found      bool   `json:"found"`
	SourceCode string `json:"source_code,omitempty"`
	Located    string `json:"located_by,omitempty"`
}

type availabilityResponse struct {
	Success    bool                   `json:"success"`
	Stores     []locator.NearbySource `json:"stores"`
	TotalFound int                    `json:"total_found"`
	Error      string                 `json:"error,omitempty"`
}

type cartValidateRequest struct {
	SourceCode string                `json:"source_code"`
	Items      []deliverability.Item `json:"items"`
}

type cartValidateResponse struct {
	Valid   bool   `json:"valid"`
	SKU     string `json:"sku,omitempty"`
	Message string `json:"message,omitempty"`
}

type precomputeResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}
