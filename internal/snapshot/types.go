package snapshot

// OutcomeKind classifies the result of submitting one URL to one archive backend.
type OutcomeKind int

// Outcome kinds. NotApplicable outcomes are never rendered.
const (
	OutcomeFailed OutcomeKind = iota
	OutcomeArchived
	OutcomeNotApplicable
)

// String returns the metric/log label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeArchived:
		return "archived"
	case OutcomeNotApplicable:
		return "not_applicable"
	default:
		return "failed"
	}
}

// Outcome is the result of one backend for one Link. ErrorLink is always set,
// even for archived outcomes, so a manual resubmit link can be rendered.
type Outcome struct {
	Backend   string
	Kind      OutcomeKind
	URL       string
	ErrorLink string
}

// Archived builds a successful outcome.
func Archived(backend, archivedURL, errorLink string) Outcome {
	return Outcome{Backend: backend, Kind: OutcomeArchived, URL: archivedURL, ErrorLink: errorLink}
}

// Failed builds an outcome rendered as a resubmit link.
func Failed(backend, errorLink string) Outcome {
	return Outcome{Backend: backend, Kind: OutcomeFailed, ErrorLink: errorLink}
}

// NotApplicable builds an outcome for a backend that declined without error.
func NotApplicable(backend, errorLink string) Outcome {
	return Outcome{Backend: backend, Kind: OutcomeNotApplicable, ErrorLink: errorLink}
}

// FeedItem is one post as delivered by the feed collaborator.
type FeedItem struct {
	ID           string
	Permalink    string
	Title        string
	URL          string
	Subreddit    string
	IsSelf       bool
	SelfTextHTML string
}

// Subreddit is a feed-source scope the account participates in.
type Subreddit struct {
	Name   string
	Banned bool
}

// Submission identifies a post created through Feed.Submit.
type Submission struct {
	ID  string
	URL string
}

// Link is one candidate URL of a post plus its archive outcomes. URL holds the
// normalized form and never changes after construction.
type Link struct {
	RawURL     string
	URL        string
	Title      string
	RedditLike bool
	Outcomes   []Outcome
}

// Post is a feed item prepared for archival. Links[0] is always the primary link.
type Post struct {
	ID        string
	Permalink string
	Title     string
	Subreddit string
	IsSelf    bool
	BodyHTML  string
	Links     []Link
}
