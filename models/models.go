package models

import "time"

// Feed is the per-owner delivery queue record
type Feed struct {
	ID        string    `json:"_id"`
	Owner     string    `json:"owner"`
	Seen      []string  `json:"seen"`
	Available []string  `json:"available"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"dateCreated"`
	UpdatedAt time.Time `json:"dateUpdated"`
}

// Clone returns a deep copy so callers can mutate the id slices freely
func (f *Feed) Clone() *Feed {
	if f == nil {
		return nil
	}
	c := *f
	c.Seen = append(make([]string, 0, len(f.Seen)), f.Seen...)
	c.Available = append(make([]string, 0, len(f.Available)), f.Available...)
	return &c
}

// Response bodies. Every body carries a human readable msg.

type CreateFeedResponse struct {
	Msg  string `json:"msg"`
	Feed *Feed  `json:"feed"`
}

type NextContentResponse struct {
	Msg string `json:"msg"`
	Id  string `json:"_id"`
}

type AddToFeedResponse struct {
	Msg      string `json:"msg"`
	Admitted int    `json:"admitted"`
}

type AddContentResponse struct {
	Msg   string `json:"msg"`
	Added bool   `json:"added"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

type ErrorResponse struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}
