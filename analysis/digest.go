package analysis

import (
	"strconv"
	"strings"

	"github.com/brettboylen/reddit-analyzer/models"
)

const (
	// MaxDigestLength bounds the digest handed to the summarizer, in characters
	MaxDigestLength = 6000

	TruncationNotice = "\n... [Additional posts analyzed but truncated for processing]"
)

// CombinePostsText builds the digest: title, content, author and upvote
// lines per post followed by a separator. Digests longer than
// MaxDigestLength characters are cut to exactly that length and get the
// truncation notice appended.
func CombinePostsText(posts []models.Post) string {
	var b strings.Builder

	for _, post := range posts {
		if post.Title != "" {
			b.WriteString("Title: ")
			b.WriteString(post.Title)
			b.WriteString("\n")
		}
		if post.Content != "" {
			b.WriteString("Content: ")
			b.WriteString(post.Content)
			b.WriteString("\n")
		}
		b.WriteString("Author: ")
		b.WriteString(post.Author)
		b.WriteString(", Upvotes: ")
		b.WriteString(strconv.Itoa(post.Upvotes))
		b.WriteString("\n---\n")
	}

	digest := b.String()
	if truncated, ok := truncateRunes(digest, MaxDigestLength); ok {
		return truncated + TruncationNotice
	}
	return digest
}

// truncateRunes cuts s to n characters; ok reports whether anything was cut
func truncateRunes(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
