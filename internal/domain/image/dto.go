package image

type CreateImageRequest struct {
	OriginalURL *string `json:"originalUrl" validate:"required,min=1"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending processing completed failed"`
}

type UpdateImageRequest struct {
	ProcessedURL *string `json:"processedUrl,omitempty" validate:"omitempty,min=1"`
	Status       *string `json:"status,omitempty" validate:"omitempty,oneof=pending processing completed failed"`
}

// Patch converts the request into a domain patch. Call after validation.
func (r UpdateImageRequest) Patch() Patch {
	p := Patch{ProcessedURL: r.ProcessedURL}
	if r.Status != nil {
		s := Status(*r.Status)
		p.Status = &s
	}
	return p
}

type ProcessResponse struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
}
