package render

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"duochat/internal/models"
)

// Viewer fixes the point of view a snapshot is rendered from: whose
// messages count as "own" and which time zone day boundaries follow.
type Viewer struct {
	UserID   string
	Location *time.Location
	Now      time.Time
}

func (v Viewer) location() *time.Location {
	if v.Location != nil {
		return v.Location
	}
	return time.Local
}

// ReactionChip is one emoji chip under a message. Empty reactor sets never
// produce a chip.
type ReactionChip struct {
	Emoji   string
	Count   int
	Reacted bool
}

// MessageView is the render model for a single message.
type MessageView struct {
	ID         string
	Own        bool
	TimeLabel  string
	Body       string
	ReplyQuote string
	HasReply   bool
	Chips      []ReactionChip
}

// DayGroup is a contiguous run of messages sharing a calendar day in the
// viewer's time zone.
type DayGroup struct {
	Key      string
	Label    string
	Messages []MessageView
}

// GroupByDay walks an already time-ordered snapshot and opens a new group
// each time the calendar day changes. The input order is preserved; the
// sequence is never re-sorted.
func GroupByDay(msgs []models.Message, viewer Viewer) []DayGroup {
	loc := viewer.location()
	todayKey := viewer.Now.In(loc).Format("2006-01-02")

	var groups []DayGroup
	lastKey := ""
	for _, msg := range msgs {
		key := msg.CreatedAt.In(loc).Format("2006-01-02")
		if len(groups) == 0 || key != lastKey {
			label := key
			if key == todayKey {
				label = "Today"
			}
			groups = append(groups, DayGroup{Key: key, Label: label})
			lastKey = key
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, messageView(msg, viewer, loc))
	}
	return groups
}

func messageView(msg models.Message, viewer Viewer, loc *time.Location) MessageView {
	view := MessageView{
		ID:        msg.ID,
		Own:       msg.SenderID == viewer.UserID,
		TimeLabel: msg.CreatedAt.In(loc).Format("15:04"),
		Body:      msg.Body,
	}
	if msg.ReplyTo != nil {
		view.HasReply = true
		view.ReplyQuote = msg.ReplyTo.Snippet
	}

	emojis := make([]string, 0, len(msg.Reactions))
	for emoji, reactors := range msg.Reactions {
		if len(reactors) == 0 {
			continue
		}
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)
	for _, emoji := range emojis {
		view.Chips = append(view.Chips, ReactionChip{
			Emoji:   emoji,
			Count:   len(msg.Reactions[emoji]),
			Reacted: msg.ReactedBy(emoji, viewer.UserID),
		})
	}
	return view
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// linkify splits message text into text and anchor nodes. Links open in a
// new browsing context and withhold the opener reference from the target
// page.
func linkify(text string) []*Node {
	var nodes []*Node
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			nodes = append(nodes, Text(text[last:loc[0]]))
		}
		url := text[loc[0]:loc[1]]
		nodes = append(nodes, El("a", []Attr{
			{Key: "href", Value: url},
			{Key: "target", Value: "_blank"},
			{Key: "rel", Value: "noopener noreferrer"},
		}, Text(url)))
		last = loc[1]
	}
	if last < len(text) {
		nodes = append(nodes, Text(text[last:]))
	}
	return nodes
}

// TimelineTree builds the full render tree for a snapshot.
func TimelineTree(msgs []models.Message, viewer Viewer) *Node {
	root := El("div", []Attr{{Key: "class", Value: "messages"}})
	for _, group := range GroupByDay(msgs, viewer) {
		root.Children = append(root.Children,
			El("div", []Attr{{Key: "class", Value: "day-sep"}}, Text(group.Label)))
		for _, view := range group.Messages {
			root.Children = append(root.Children, messageNode(view))
		}
	}
	return root
}

// TimelineHTML renders a snapshot to markup.
func TimelineHTML(msgs []models.Message, viewer Viewer) string {
	return TimelineTree(msgs, viewer).HTML()
}

func messageNode(view MessageView) *Node {
	class := "msg other"
	if view.Own {
		class = "msg me"
	}
	node := El("div", []Attr{
		{Key: "class", Value: class},
		{Key: "data-id", Value: view.ID},
	})

	if view.HasReply {
		node.Children = append(node.Children,
			El("div", []Attr{{Key: "class", Value: "reply-quote"}}, Text(view.ReplyQuote)))
	}

	body := El("div", []Attr{{Key: "class", Value: "body"}})
	body.Children = linkify(view.Body)
	node.Children = append(node.Children, body)

	node.Children = append(node.Children,
		El("div", []Attr{{Key: "class", Value: "meta"}},
			El("span", []Attr{{Key: "class", Value: "time"}}, Text(view.TimeLabel))))

	if len(view.Chips) > 0 {
		reacts := El("div", []Attr{{Key: "class", Value: "reacts-view"}})
		for _, chip := range view.Chips {
			chipClass := "react-chip"
			if chip.Reacted {
				chipClass = "react-chip active"
			}
			reacts.Children = append(reacts.Children,
				El("span", []Attr{{Key: "class", Value: chipClass}},
					Text(chip.Emoji+" "+strconv.Itoa(chip.Count))))
		}
		node.Children = append(node.Children, reacts)
	}
	return node
}
