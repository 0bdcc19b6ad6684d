package remote

// Pagination is the paging block most list endpoints return.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Outcome is one answer of a market with its accumulated points.
type Outcome struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	TotalPoints float64 `json:"total_points" yaml:"total_points"`
}

type Market struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Slug        string    `json:"slug,omitempty" yaml:"slug,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string    `json:"category" yaml:"category"`
	Status      string    `json:"status" yaml:"status"`
	CreatedAt   string    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Outcomes    []Outcome `json:"outcomes" yaml:"outcomes"`
	TotalVolume float64   `json:"total_volume,omitempty" yaml:"total_volume,omitempty"`
}

type CommentUser struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Reputation  float64  `json:"reputation" yaml:"reputation"`
	Badges      []string `json:"badges,omitempty" yaml:"badges,omitempty"`
}

type Comment struct {
	ID         string      `json:"id" yaml:"id"`
	MarketID   string      `json:"market_id" yaml:"market_id"`
	User       CommentUser `json:"user" yaml:"user"`
	ParentID   string      `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Content    string      `json:"content" yaml:"content"`
	LikeCount  int         `json:"like_count" yaml:"like_count"`
	ReplyCount int         `json:"reply_count" yaml:"reply_count"`
	IsEdited   bool        `json:"is_edited" yaml:"is_edited"`
	IsDeleted  bool        `json:"is_deleted" yaml:"is_deleted"`
	CreatedAt  string      `json:"created_at" yaml:"created_at"`
	// Replies is the nested thread under this comment, oldest first. The
	// server cuts it off a few levels deep.
	Replies []Comment `json:"replies,omitempty" yaml:"replies,omitempty"`

	// Filled in locally from Content.
	Text  string   `json:"text,omitempty" yaml:"text,omitempty"`
	Links []string `json:"links,omitempty" yaml:"links,omitempty"`
}

// Holder is a user's position on one outcome.
type Holder struct {
	UserID      string  `json:"user_id" yaml:"user_id"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	OutcomeID   string  `json:"outcome_id" yaml:"outcome_id"`
	OutcomeName string  `json:"outcome_name" yaml:"outcome_name"`
	Points      float64 `json:"points" yaml:"points"`
}

// Activity is one entry of a market's chronological log.
type Activity struct {
	ID              string         `json:"id" yaml:"id"`
	UserID          string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	MarketID        string         `json:"market_id,omitempty" yaml:"market_id,omitempty"`
	ActivityType    string         `json:"activity_type" yaml:"activity_type"`
	UserDisplayName string         `json:"user_display_name,omitempty" yaml:"user_display_name,omitempty"`
	MarketTitle     string         `json:"market_title,omitempty" yaml:"market_title,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt       string         `json:"created_at" yaml:"created_at"`
}

type LeaderboardEntry struct {
	Rank           int      `json:"rank" yaml:"rank"`
	UserID         string   `json:"user_id" yaml:"user_id"`
	DisplayName    string   `json:"display_name" yaml:"display_name"`
	Reputation     float64  `json:"reputation" yaml:"reputation"`
	RankScore      float64  `json:"rank_score" yaml:"rank_score"`
	WinningStreak  int      `json:"winning_streak,omitempty" yaml:"winning_streak,omitempty"`
	ActivityStreak int      `json:"activity_streak,omitempty" yaml:"activity_streak,omitempty"`
	TotalForecasts int      `json:"total_forecasts,omitempty" yaml:"total_forecasts,omitempty"`
	Badges         []string `json:"badges,omitempty" yaml:"badges,omitempty"`
}

type Forecast struct {
	ID           string   `json:"id" yaml:"id"`
	MarketID     string   `json:"market_id" yaml:"market_id"`
	OutcomeID    string   `json:"outcome_id" yaml:"outcome_id"`
	Points       float64  `json:"points" yaml:"points"`
	RewardAmount *float64 `json:"reward_amount,omitempty" yaml:"reward_amount,omitempty"`
	Status       string   `json:"status" yaml:"status"`
	CreatedAt    string   `json:"created_at" yaml:"created_at"`
	OutcomeName  string   `json:"outcome_name,omitempty" yaml:"outcome_name,omitempty"`
	MarketTitle  string   `json:"market_title,omitempty" yaml:"market_title,omitempty"`
	MarketStatus string   `json:"market_status,omitempty" yaml:"market_status,omitempty"`
}
