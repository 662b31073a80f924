package store

import (
	"github.com/google/uuid"
)

// ChannelID identifies a channel. It encodes as the canonical UUID string.
type ChannelID struct {
	uuid.UUID
}

// CommentID identifies a comment. It encodes as the canonical UUID string.
type CommentID struct {
	uuid.UUID
}

func NewChannelID() ChannelID { return ChannelID{uuid.New()} }

func NewCommentID() CommentID { return CommentID{uuid.New()} }

func ParseChannelID(s string) (ChannelID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ChannelID{}, err
	}
	return ChannelID{id}, nil
}

func ParseCommentID(s string) (CommentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CommentID{}, err
	}
	return CommentID{id}, nil
}

type Channel struct {
	ID   ChannelID `toml:"id" json:"id"`
	Name string    `toml:"name" json:"name"`
}

type Comment struct {
	ID        CommentID `toml:"id" json:"id"`
	ChannelID ChannelID `toml:"channel-id" json:"channel_id"`
	Name      string    `toml:"name" json:"name"`
	Message   string    `toml:"message" json:"message"`
}

// Document is the whole persisted file. Slice order is creation order.
type Document struct {
	VersionCode uint64    `toml:"version-code"`
	Channels    []Channel `toml:"channels"`
	Comments    []Comment `toml:"comments"`
}

// NewDocument returns an empty document stamped with versionCode.
func NewDocument(versionCode uint64) *Document {
	return &Document{
		VersionCode: versionCode,
		Channels:    []Channel{},
		Comments:    []Comment{},
	}
}

func (d *Document) FindChannel(id ChannelID) (Channel, bool) {
	for _, c := range d.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// CommentsIn returns the comments of one channel in creation order.
func (d *Document) CommentsIn(id ChannelID) []Comment {
	out := make([]Comment, 0)
	for _, c := range d.Comments {
		if c.ChannelID == id {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks ID uniqueness and that every comment points at a channel.
func (d *Document) Validate() error {
	channels := make(map[ChannelID]struct{}, len(d.Channels))
	for _, c := range d.Channels {
		if _, dup := channels[c.ID]; dup {
			return &InvariantError{Reason: "duplicate channel id " + c.ID.String()}
		}
		channels[c.ID] = struct{}{}
	}
	comments := make(map[CommentID]struct{}, len(d.Comments))
	for _, c := range d.Comments {
		if _, dup := comments[c.ID]; dup {
			return &InvariantError{Reason: "duplicate comment id " + c.ID.String()}
		}
		comments[c.ID] = struct{}{}
		if _, ok := channels[c.ChannelID]; !ok {
			return &InvariantError{Reason: "comment " + c.ID.String() + " references unknown channel " + c.ChannelID.String()}
		}
	}
	return nil
}
