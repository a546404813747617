package types

// ReconcilerStatus is the read-only introspection surface of the watch engine,
// used for health reporting.
type ReconcilerStatus struct {
	ActiveCount int      `json:"active_count"`
	ActiveKeys  []string `json:"active_keys"`
}

// OrderStatusResponse is returned by the order status endpoint.
type OrderStatusResponse struct {
	Order   *Order `json:"order"`
	Watched bool   `json:"watched"`
}
