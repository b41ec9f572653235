package models

// Link запись короткой ссылки. Временные метки в секундах Unix.
type Link struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Note      *string `json:"note"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
	Clicks    int64   `json:"clicks"`
}

type CreateLinkInput struct {
	ID   string
	URL  string
	Note *string
}

// UpdateLinkInput частичное обновление: nil-поля не меняются
type UpdateLinkInput struct {
	ID   string
	URL  *string
	Note *string
}

// LinkUpdate изменения, передаваемые в хранилище
type LinkUpdate struct {
	URL       *string
	Note      *string
	UpdatedAt int64
}
