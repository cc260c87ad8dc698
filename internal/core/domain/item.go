package domain

// Item is the single sellable unit. Quantity is mutated only through the
// transactional purchase path or a reset, never in place.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Quantity    int    `json:"quantity"`
}
