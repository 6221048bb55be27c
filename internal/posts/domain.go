// Package posts serves the social side of the API: posts, comments, likes and the feed.
package posts

import "time"

// Post is a blog entry owned by its author.
type Post struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	AuthorID       int64     `json:"author"`
	AuthorUsername string    `json:"author_username"`
	LikesCount     int       `json:"likes_count"`
	CommentsCount  int       `json:"comments_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OwnerID implements rbac.Owned.
func (p *Post) OwnerID() int64 { return p.AuthorID }

// Comment is a reply to a post, owned by its author.
type Comment struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"post"`
	AuthorID       int64     `json:"author"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OwnerID implements rbac.Owned.
func (c *Comment) OwnerID() int64 { return c.AuthorID }

// PostInput is the full representation accepted on create and replace.
type PostInput struct {
	Title   string `json:"title" validate:"required,notblank,max=200,safetext"`
	Content string `json:"content" validate:"required,notblank,richtext"`
}

// PostPatch is the partial representation accepted on PATCH.
type PostPatch struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Apply overlays the patch on an existing post.
func (p PostPatch) Apply(post *Post) PostInput {
	in := PostInput{Title: post.Title, Content: post.Content}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Content != nil {
		in.Content = *p.Content
	}
	return in
}

// CommentInput is accepted on comment create.
type CommentInput struct {
	PostID  int64  `json:"post" validate:"required,gt=0"`
	Content string `json:"content" validate:"required,notblank,min=5,richtext"`
}

// CommentUpdate is accepted on comment PUT and PATCH. The post of a comment never changes.
type CommentUpdate struct {
	Content string `json:"content" validate:"required,notblank,min=5,richtext"`
}

// PostMutation is the envelope returned by post create and update.
type PostMutation struct {
	Message string `json:"message"`
	Post    *Post  `json:"post"`
}

// CommentMutation is the envelope returned by comment create and update.
type CommentMutation struct {
	Message string   `json:"message"`
	Comment *Comment `json:"comment"`
}
