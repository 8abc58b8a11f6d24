package db

import "time"

// Article maps news.articles, the historical store of accepted articles.
type Article struct {
	ArticleID      int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID    string     `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	URL            string     `gorm:"column:url;type:text;not null;unique"`
	URLHash        []byte     `gorm:"column:url_hash;type:bytea;not null"`
	Title          string     `gorm:"column:title;type:text;not null"`
	Summary        string     `gorm:"column:summary;type:text;not null;default:''"`
	SourceName     string     `gorm:"column:source_name;type:text;not null"`
	SourceType     string     `gorm:"column:source_type;type:text;not null;default:rss"`
	Language       string     `gorm:"column:language;type:text;not null;default:und"`
	Region         *string    `gorm:"column:region;type:text"`
	Category       *string    `gorm:"column:category;type:text"`
	Layer          *string    `gorm:"column:layer;type:text"`
	PublishedAt    *time.Time `gorm:"column:published_at;type:timestamptz"`
	Embedding      string     `gorm:"column:embedding;type:vector(1536);not null"`
	EmbeddingModel string     `gorm:"column:embedding_model;type:text;not null"`
	DeletedAt      *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "news.articles" }

// DedupRun maps news.dedup_runs, one row per orchestrator run.
type DedupRun struct {
	RunID                int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID              string     `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	StartedAt            time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt           *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status               string     `gorm:"column:status;type:news.dedup_run_status;not null;default:running"`
	Stage                string     `gorm:"column:stage;type:text;not null;default:merged"`
	Bootstrap            bool       `gorm:"column:bootstrap;type:boolean;not null;default:false"`
	LookbackHours        int        `gorm:"column:lookback_hours;type:integer;not null;default:48"`
	TotalInput           int        `gorm:"column:total_input;type:integer;not null;default:0"`
	MalformedInput       int        `gorm:"column:malformed_input;type:integer;not null;default:0"`
	MergeCollisions      int        `gorm:"column:merge_collisions;type:integer;not null;default:0"`
	URLDuplicates        int        `gorm:"column:url_duplicates;type:integer;not null;default:0"`
	UniqueKept           int        `gorm:"column:unique_kept;type:integer;not null;default:0"`
	AutoDiscarded        int        `gorm:"column:auto_discarded;type:integer;not null;default:0"`
	ConfirmedDuplicate   int        `gorm:"column:confirmed_duplicate;type:integer;not null;default:0"`
	ConfirmedUnique      int        `gorm:"column:confirmed_unique;type:integer;not null;default:0"`
	ArbitrationFailures  int        `gorm:"column:arbitration_failures;type:integer;not null;default:0"`
	CommitFailures       int        `gorm:"column:commit_failures;type:integer;not null;default:0"`
	Stored               int        `gorm:"column:stored;type:integer;not null;default:0"`
	ErrorMessage         *string    `gorm:"column:error_message;type:text"`
	CreatedAt            time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (DedupRun) TableName() string { return "news.dedup_runs" }

// DedupDecision maps news.dedup_decisions, the append-only audit log.
type DedupDecision struct {
	DecisionID       int64     `gorm:"column:decision_id;primaryKey;autoIncrement"`
	DecisionUUID     string    `gorm:"column:decision_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RunID            int64     `gorm:"column:run_id;type:bigint;not null;uniqueIndex:idx_dedup_decisions_run_url,priority:1"`
	URL              string    `gorm:"column:url;type:text;not null;uniqueIndex:idx_dedup_decisions_run_url,priority:2"`
	Title            string    `gorm:"column:title;type:text;not null"`
	SourceName       string    `gorm:"column:source_name;type:text;not null"`
	SourceType       string    `gorm:"column:source_type;type:text;not null"`
	Outcome          string    `gorm:"column:outcome;type:news.dedup_outcome;not null"`
	MatchType        *string   `gorm:"column:match_type;type:news.dedup_match_type"`
	MatchedURL       *string   `gorm:"column:matched_url;type:text"`
	MatchedArticleID *int64    `gorm:"column:matched_article_id;type:bigint"`
	Score            *float64  `gorm:"column:score;type:double precision"`
	Reason           *string   `gorm:"column:reason;type:text"`
	Arbitrated       bool      `gorm:"column:arbitrated;type:boolean;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupDecision) TableName() string { return "news.dedup_decisions" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&DedupRun{},
		&DedupDecision{},
	}
}
