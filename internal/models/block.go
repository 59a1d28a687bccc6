package models

import "fmt"

// BlockRef points at a note block inside a graph page: by its id:: property
// when ID is set, else by the 1-based line of its bullet.
type BlockRef struct {
	Page string `json:"page" yaml:"page" validate:"required,max=500"`
	ID   string `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=100"`
	Line int    `json:"line,omitempty" yaml:"line,omitempty" validate:"omitempty,min=1"`
}

func (r BlockRef) String() string {
	if r.ID != "" {
		return r.Page + "#" + r.ID
	}
	return fmt.Sprintf("%s:%d", r.Page, r.Line)
}
