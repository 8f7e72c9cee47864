package playback

// Position addresses one slide inside a session
type Position struct {
	Story int `json:"story_index"`
	Slide int `json:"slide_index"`
}

// IntentKind is a navigation request
type IntentKind int

const (
	IntentAdvance IntentKind = iota + 1
	IntentRetreat
	IntentJumpToStory
)

func (k IntentKind) String() string {
	switch k {
	case IntentAdvance:
		return "advance"
	case IntentRetreat:
		return "retreat"
	case IntentJumpToStory:
		return "jump"
	}
	return "unknown"
}

// Intent is a navigation request. Story is only read for IntentJumpToStory.
type Intent struct {
	Kind  IntentKind
	Story int
}

// Advance, Retreat and JumpTo build the three intents
func Advance() Intent         { return Intent{Kind: IntentAdvance} }
func Retreat() Intent         { return Intent{Kind: IntentRetreat} }
func JumpTo(story int) Intent { return Intent{Kind: IntentJumpToStory, Story: story} }

// NextKind classifies a resolved transition
type NextKind int

const (
	SameStory NextKind = iota + 1
	NextStory
	PrevStory
	Close
)

func (k NextKind) String() string {
	switch k {
	case SameStory:
		return "same_story"
	case NextStory:
		return "next_story"
	case PrevStory:
		return "prev_story"
	case Close:
		return "close"
	}
	return "unknown"
}

// Next is the outcome of resolving an intent. Position is meaningless when
// Kind is Close.
type Next struct {
	Kind     NextKind
	Position Position
}

// Resolver maps (position, intent) to the next position. It only knows how
// many slides each story has.
type Resolver struct {
	counts []int
}

// NewResolver captures slide counts from stories. Stories are assumed valid.
func NewResolver(stories []Story) *Resolver {
	counts := make([]int, len(stories))
	for i, s := range stories {
		counts[i] = len(s.Slides)
	}
	return &Resolver{counts: counts}
}

// StoryCount returns the number of stories the resolver navigates
func (r *Resolver) StoryCount() int {
	return len(r.counts)
}

// SlideCount returns the number of slides in story i
func (r *Resolver) SlideCount(i int) int {
	return r.counts[i]
}

// Resolve computes the transition for intent at pos. Only an out-of-range jump
// returns an error; every other input yields a valid position or Close.
func (r *Resolver) Resolve(pos Position, intent Intent) (Next, error) {
	switch intent.Kind {
	case IntentAdvance:
		if pos.Slide+1 < r.counts[pos.Story] {
			return Next{Kind: SameStory, Position: Position{Story: pos.Story, Slide: pos.Slide + 1}}, nil
		}
		if pos.Story+1 < len(r.counts) {
			return Next{Kind: NextStory, Position: Position{Story: pos.Story + 1}}, nil
		}
		return Next{Kind: Close}, nil

	case IntentRetreat:
		if pos.Slide > 0 {
			return Next{Kind: SameStory, Position: Position{Story: pos.Story, Slide: pos.Slide - 1}}, nil
		}
		if pos.Story > 0 {
			prev := pos.Story - 1
			return Next{Kind: PrevStory, Position: Position{Story: prev, Slide: r.counts[prev] - 1}}, nil
		}
		// nothing before the beginning
		return Next{Kind: SameStory, Position: Position{}}, nil

	case IntentJumpToStory:
		if intent.Story < 0 || intent.Story >= len(r.counts) {
			return Next{}, &NavigationContractError{Index: intent.Story, Count: len(r.counts)}
		}
		return Next{Kind: NextStory, Position: Position{Story: intent.Story}}, nil
	}
	return Next{Kind: SameStory, Position: pos}, nil
}
