package model

// Exercise is an entry of the shared exercise catalog. Treatment plans only
// reference it.
type Exercise struct {
	Base
	Name         string `json:"name" db:"name"`
	Description  string `json:"description" db:"description"`
	Category     string `json:"category" db:"category"`
	Difficulty   string `json:"difficulty" db:"difficulty"`
	Duration     int    `json:"duration" db:"duration"`
	Instructions string `json:"instructions" db:"instructions"`
	VideoURL     string `json:"video_url" db:"video_url"`
	ImageURL     string `json:"image_url" db:"image_url"`
}
