package domain

// CheckoutMetrics is the snapshot served by GET /v1/metrics/checkout.
type CheckoutMetrics struct {
	ChargesCreated    int64   `json:"charges_created"`
	PixCharges        int64   `json:"pix_charges"`
	CardCharges       int64   `json:"card_charges"`
	Confirmations     int64   `json:"confirmations"`
	Declines          int64   `json:"declines"`
	Expirations       int64   `json:"expirations"`
	GatewayErrors     int64   `json:"gateway_errors"`
	ConversionRate    float64 `json:"conversion_rate"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	Period            string  `json:"period"`
}

// Health is the payload for the liveness endpoint.
type Health struct {
	Status  string `json:"status"`
	Gateway string `json:"gateway,omitempty"`
	Backend string `json:"backend,omitempty"`
}
