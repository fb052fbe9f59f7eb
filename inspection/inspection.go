// Package inspection describes the condition report a rider attaches to an
// unlock or lock request.
package inspection

import (
	"database/sql/driver"
	"errors"

	"github.com/goccy/go-json"
)

type Payload struct {
	// Checklist maps an inspection item (e.g. "brakes", "lights") to whether it passed.
	Checklist map[string]bool `json:"checklist,omitempty"`
	PhotoURLs []string        `json:"photoUrls,omitempty"`
	Comment   string          `json:"comment,omitempty"`
	Latitude  *float64        `json:"latitude,omitempty"`
	Longitude *float64        `json:"longitude,omitempty"`
}

// Failed lists the checklist items the rider marked as failing.
func (p Payload) Failed() []string {
	var failed []string
	for item, ok := range p.Checklist {
		if !ok {
			failed = append(failed, item)
		}
	}
	return failed
}

func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return errors.New("inspection: unsupported scan type")
}
