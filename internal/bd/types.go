package bd

// Issue is one beads record as decoded from bd's JSON output. The shape is
// owned by bd; fields are decoded defensively and unknown fields ignored.
// This layer only relies on ID being present.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    int       `json:"priority,omitempty"`
	IssueType   string    `json:"issue_type,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Estimate    string    `json:"estimate,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
	CreatedAt   string    `json:"created_at,omitempty"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
}

// Comment is one comment on an issue, relayed as-is.
type Comment struct {
	ID        string `json:"id,omitempty"`
	Author    string `json:"author,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}
