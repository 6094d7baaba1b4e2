package domain

// ImagePayload is the normalized image handed over by the image normalizer.
// The pipeline treats it as opaque apart from passing the bytes to inference.
type ImagePayload struct {
	Reference string
	Data      []byte
	MimeType  string
	Width     int
	Height    int
}

// Clone returns a deep copy of the payload.
func (p *ImagePayload) Clone() *ImagePayload {
	if p == nil {
		return nil
	}
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}
