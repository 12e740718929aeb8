package flows

import "fmt"

// Topic selects which remote flow handles the next user turn.
type Topic string

const (
	TopicTech           Topic = "tech"
	TopicCareer         Topic = "career"
	TopicCollege        Topic = "college"
	TopicPersonalGrowth Topic = "personal-growth"
	TopicExplain        Topic = "explain"
)

// Topics lists every routable topic in display order.
var Topics = []Topic{TopicTech, TopicCareer, TopicCollege, TopicPersonalGrowth, TopicExplain}

// ParseTopic validates a topic name. The legacy spelling "personal growth"
// is accepted for personal-growth.
func ParseTopic(s string) (Topic, error) {
	if s == "personal growth" {
		return TopicPersonalGrowth, nil
	}
	t := Topic(s)
	if _, ok := dispatch[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, s)
	}
	return t, nil
}

// Label is the human wording of a topic, as used inside prompts.
func (t Topic) Label() string {
	if t == TopicPersonalGrowth {
		return "personal growth"
	}
	return string(t)
}
