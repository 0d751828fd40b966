package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	OriginalName     string    `json:"originalName"`
	StoredName       string    `json:"storedName"`
	MimeType         string    `json:"mimeType"`
	SizeBytes        int64     `json:"sizeBytes"`
	Bucket           string    `json:"bucket"`
	StoragePath      string    `json:"storagePath"`
	ExtractedText    *string   `json:"extractedText,omitempty"`
	ExtractedHTML    *string   `json:"extractedHtml,omitempty"`
	EnrichmentStatus Status    `json:"enrichmentStatus"`
	Summary          *string   `json:"summary"`
	Keywords         []string  `json:"keywords"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PaginationResponse describes the page returned by the list endpoint.
type PaginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListResponse is the list endpoint body.
type ListResponse struct {
	Data       []DocumentResponse `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// toResponse renders doc; extracted content is only included when withContent is set.
func toResponse(doc Document, withContent bool) DocumentResponse {
	keywords := doc.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	resp := DocumentResponse{
		ID:               doc.ID,
		OwnerID:          doc.OwnerID,
		OriginalName:     doc.OriginalName,
		StoredName:       doc.StoredName,
		MimeType:         doc.MimeType,
		SizeBytes:        doc.SizeBytes,
		Bucket:           doc.Bucket,
		StoragePath:      doc.StoragePath,
		EnrichmentStatus: doc.Status,
		Summary:          doc.Summary,
		Keywords:         keywords,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if withContent {
		text, html := doc.ExtractedText, doc.ExtractedHTML
		resp.ExtractedText = &text
		resp.ExtractedHTML = &html
	}
	return resp
}

func toListResponse(res ListResult) ListResponse {
	data := make([]DocumentResponse, 0, len(res.Items))
	for _, doc := range res.Items {
		data = append(data, toResponse(doc, false))
	}
	return ListResponse{
		Data: data,
		Pagination: PaginationResponse{
			Page:  res.Page,
			Limit: res.Limit,
			Total: res.Total,
		},
	}
}
