package parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/brettboylen/reddit-analyzer/models"
)

const (
	kindPost    = "t3"
	kindComment = "t1"

	// link posts pointing back at this host are discussion threads
	redditHost = "reddit.com"

	linkPostPrefix     = "Link post: "
	discussionThread   = "Discussion thread"
	titleOnlyPost      = "Title-only post"
	defaultMaxComments = 5000
)

// ParseError indicates the top-level payload could not be decoded
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// thing is the kind+data envelope Reddit wraps every record in
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string            `json:"after"`
		Children []json.RawMessage `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	SelfText    string   `json:"selftext"`
	URL         string   `json:"url"`
	Author      *string  `json:"author"`
	Ups         int      `json:"ups"`
	CreatedUTC  *float64 `json:"created_utc"`
	NumComments int      `json:"num_comments"`
}

type commentData struct {
	Replies json.RawMessage `json:"replies"`
}

// ParsePosts converts a subreddit listing payload (a single listing or an
// array of listings) into posts. Children that are not posts are skipped.
func ParsePosts(body []byte) ([]models.Post, error) {
	listings, err := decodeListings(body)
	if err != nil {
		return nil, &ParseError{Source: "listing", Err: err}
	}

	posts := make([]models.Post, 0)
	for _, l := range listings {
		for _, raw := range l.Data.Children {
			post, ok := parseChild(raw)
			if !ok {
				continue
			}
			posts = append(posts, post)
		}
	}

	return posts, nil
}

// ParseThread converts a thread payload ([post listing, comment listing]) into
// at most one post whose comment count is taken from the full reply tree
func ParseThread(body []byte) ([]models.Post, error) {
	var envelopes []json.RawMessage
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return nil, &ParseError{Source: "thread", Err: err}
	}

	posts := make([]models.Post, 0, 1)
	if len(envelopes) < 2 {
		return posts, nil
	}

	var postListing listing
	if err := json.Unmarshal(envelopes[0], &postListing); err != nil {
		return posts, nil
	}

	for _, raw := range postListing.Data.Children {
		post, ok := parseChild(raw)
		if !ok {
			continue
		}

		post.CommentCount = 0
		var comments listing
		if err := json.Unmarshal(envelopes[1], &comments); err == nil {
			post.CommentCount = CountComments(comments.Data.Children)
		}

		posts = append(posts, post)
		break
	}

	return posts, nil
}

// CountComments counts every comment node in a reply tree, nested replies included.
// "more" placeholders and malformed nodes count as zero. At most 5000 nodes are visited.
func CountComments(children []json.RawMessage) int {
	budget := defaultMaxComments
	return countCommentsRecursive(children, &budget)
}

func countCommentsRecursive(children []json.RawMessage, budget *int) int {
	count := 0
	for _, raw := range children {
		if *budget <= 0 {
			return count
		}

		var node thing
		if err := json.Unmarshal(raw, &node); err != nil || node.Kind != kindComment {
			continue
		}
		*budget--
		count++

		var data commentData
		if err := json.Unmarshal(node.Data, &data); err != nil {
			continue
		}

		// replies is "" when there are none, a listing otherwise
		var replies listing
		if len(data.Replies) == 0 || json.Unmarshal(data.Replies, &replies) != nil {
			continue
		}
		count += countCommentsRecursive(replies.Data.Children, budget)
	}
	return count
}

func decodeListings(body []byte) ([]listing, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var listings []listing
		if err := json.Unmarshal(body, &listings); err != nil {
			return nil, err
		}
		return listings, nil
	}

	var single listing
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []listing{single}, nil
}

// parseChild turns one kind+data envelope into a post; ok is false for
// anything that is not a well formed post record
func parseChild(raw json.RawMessage) (models.Post, bool) {
	var child thing
	if err := json.Unmarshal(raw, &child); err != nil || child.Kind != kindPost || len(child.Data) == 0 {
		return models.Post{}, false
	}

	var data postData
	if err := json.Unmarshal(child.Data, &data); err != nil {
		return models.Post{}, false
	}

	author := models.UnknownAuthor
	if data.Author != nil && *data.Author != "" {
		author = *data.Author
	}

	var createdAt time.Time
	if data.CreatedUTC != nil {
		createdAt = time.Unix(int64(*data.CreatedUTC), 0).Local()
	}

	upvotes := data.Ups
	if upvotes < 0 {
		upvotes = 0
	}

	return models.Post{
		ID:           data.ID,
		Title:        data.Title,
		Content:      resolveContent(data.SelfText, data.URL),
		Author:       author,
		Upvotes:      upvotes,
		CreatedAt:    createdAt,
		CommentCount: data.NumComments,
	}, true
}

// resolveContent picks the body text: self text, then a link marker for
// external URLs, then a discussion marker for same-host URLs
func resolveContent(selfText, link string) string {
	if selfText != "" {
		return selfText
	}
	if link != "" {
		if pointsAtReddit(link) {
			return discussionThread
		}
		return linkPostPrefix + link
	}
	return titleOnlyPost
}

func pointsAtReddit(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return strings.Contains(link, redditHost)
	}
	// relative links stay on the same host
	if u.Host == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return host == redditHost || strings.HasSuffix(host, "."+redditHost)
}
