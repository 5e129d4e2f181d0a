package server

// Request types for WebSocket commands with validation tags.

// AudioUpdateRequest is the request body for audio/update. Nil fields
// keep their current value.
type AudioUpdateRequest struct {
	Backend    *string `json:"backend" validate:"omitempty,oneof=capture wav"`
	Input      *string `json:"input" validate:"omitempty,max=256"`
	File       *string `json:"file" validate:"omitempty,max=4096"`
	Loop       *bool   `json:"loop"`
	Realtime   *bool   `json:"realtime"`
	SampleRate *int    `json:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	BlockSize  *int    `json:"block_size" validate:"omitempty,gte=128,lte=65536"`
}

// EventsRequest is the request body for events/get.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=all capture peak"`
}
