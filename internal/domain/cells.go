package domain

// Field names a contact attribute as a store column.
type Field string

const (
	FieldEmail        Field = "email"
	FieldFirstName    Field = "first_name"
	FieldStatus       Field = "status"
	FieldLastActivity Field = "last_followup_date"
	FieldFollowUps    Field = "followup_count"
)

func (f Field) String() string { return string(f) }

func (f Field) IsValid() bool {
	switch f {
	case FieldEmail, FieldFirstName, FieldStatus, FieldLastActivity, FieldFollowUps:
		return true
	}
	return false
}

// CellUpdate sets one field of one contact row to an absolute value.
type CellUpdate struct {
	Row   int
	Field Field
	Value string
}

// Cell is one value read from a column, tagged with its row reference.
type Cell struct {
	Row   int
	Value string
}
