package models

// The platform owns campaigns, posts and users; this service only reads
// display fields for receipts and applies atomic raised-amount arithmetic on
// campaigns. Schemas here mirror the platform tables we touch.

// Campaign is a fundraising target with a running raised total.
type Campaign struct {
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// OwnerUserID is the campaign creator, notified on new donations.
	OwnerUserID string `json:"owner_user_id" gorm:"column:owner_user_id;index"`
	Title       string `json:"title" gorm:"column:title"`
	// GoalAmount and RaisedAmount are minor units. RaisedAmount only ever
	// changes via single-statement atomic updates, never read-modify-write.
	GoalAmount   int64 `json:"goal_amount" gorm:"column:goal_amount"`
	RaisedAmount int64 `json:"raised_amount" gorm:"column:raised_amount"`
}

// Post is a posted update that can receive one-time donations.
type Post struct {
	ID           string `json:"id" gorm:"column:id;primaryKey"`
	AuthorUserID string `json:"author_user_id" gorm:"column:author_user_id;index"`
	Title        string `json:"title" gorm:"column:title"`
}

// User is the slice of the platform user record needed for receipts and
// notifications.
type User struct {
	ID          string `json:"id" gorm:"column:id;primaryKey"`
	DisplayName string `json:"display_name" gorm:"column:display_name"`
}
