package staging

import (
	"errors"
	"time"
)

// Step is a position in the bulk-upload wizard.
type Step int

const (
	StepUpload     Step = 1
	StepThumbnails Step = 2
	StepReview     Step = 3
	StepCategories Step = 4
)

// String returns the wizard label for s.
func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepThumbnails:
		return "thumbnails"
	case StepReview:
		return "review"
	case StepCategories:
		return "categories"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a staged item.
type Status string

const (
	StatusStaged   Status = "staged"
	StatusImported Status = "imported"
	StatusFailed   Status = "failed"
)

var (
	ErrNotFound        = errors.New("staged item not found")
	ErrInvalidStep     = errors.New("step must be between 1 and 4")
	ErrNothingSelected = errors.New("select at least one item to continue")
	ErrNoItems         = errors.New("upload at least one family file to continue")
)

// Batch is one user's bulk-upload session.
type Batch struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Step       Step      `json:"step"`
	Categories []string  `json:"categories"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Item is a family waiting to be imported.
type Item struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id"`
	Position      int       `json:"position"`
	Name          string    `json:"name"`
	SKU           string    `json:"SKU"`
	Desc          string    `json:"desc"`
	Freemium      string    `json:"freemium"`
	Parametric    bool      `json:"parametric"`
	NestedFamily  bool      `json:"nested_family"`
	Categories    []string  `json:"categories"`
	RFAPath       string    `json:"rfa_path"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	Matched       bool      `json:"matched"`
	Selected      bool      `json:"selected"`
	Status        Status    `json:"status"`
	RemoteID      string    `json:"remote_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemPatch holds the editable fields of an Item. Nil fields are left
// unchanged.
type ItemPatch struct {
	Name         *string   `json:"name,omitempty"`
	SKU          *string   `json:"SKU,omitempty"`
	Desc         *string   `json:"desc,omitempty"`
	Freemium     *string   `json:"freemium,omitempty"`
	Parametric   *bool     `json:"parametric,omitempty"`
	NestedFamily *bool     `json:"nested_family,omitempty"`
	Categories   *[]string `json:"categories,omitempty"`
	Selected     *bool     `json:"selected,omitempty"`
}

// Summary counts the items of a batch.
type Summary struct {
	Total     int  `json:"total"`
	Matched   int  `json:"matched"`
	Unmatched int  `json:"unmatched"`
	Selected  int  `json:"selected"`
	Imported  int  `json:"imported"`
	Failed    int  `json:"failed"`
	Step      Step `json:"step"`
}
