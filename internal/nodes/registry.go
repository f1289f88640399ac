package nodes

import (
	"fmt"
	"sync"
)

// Tag identifies a tag the transformer treats specially. The set is closed:
// adding a member means adding a contract in defaultContract.
type Tag int

const (
	TagUnknown Tag = iota
	TagFrontmatter
	TagInclude
	TagPanel
	TagPopover
	TagTooltip
	TagModal
	TagTab
	TagTabGroup
	TagBox
	TagDropdown
	TagThumbnail
	TagQuestion
	TagQOption
	TagQuiz
	TagMd
	TagMarkdown
	TagFootnotes
	TagHeadTop
	TagHeadBottom
	TagScriptBottom
	TagVariable
	TagHeading
	TagCode
	TagAnchor
	TagLink
	TagImg
	TagPic
	TagScript
	tagCount
)

// SlotRule promotes an attribute to a named slot child.
type SlotRule struct {
	Attribute string
	// Slot defaults to Attribute.
	Slot string
	// Inline renders the attribute value as inline Markdown.
	Inline bool
	// PreemptedBySlot logs when both the attribute and the slot are present.
	PreemptedBySlot bool
}

// SlotName returns the slot this rule fills.
func (r SlotRule) SlotName() string {
	if r.Slot != "" {
		return r.Slot
	}
	return r.Attribute
}

// Contract describes how the transformer treats one tag.
type Contract struct {
	Name  string
	Slots []SlotRule
	// Rename is the tag emitted in the final markup, if different.
	Rename string
	// LinkAttr names the attribute carrying a site link, if any.
	LinkAttr string
	// VPre marks content the client runtime must not compile.
	VPre bool
}

// Registry maps tag names to contracts. One registry belongs to one build
// session and is passed explicitly to every transformer it configures.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Tag
	contracts [tagCount]Contract
	extra     map[string]Contract
}

// NewRegistry returns a registry holding the built-in component contracts.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Tag, tagCount),
		extra:  map[string]Contract{},
	}
	for t := TagUnknown + 1; t < tagCount; t++ {
		c := defaultContract(t)
		r.contracts[t] = c
		if t != TagHeading {
			r.byName[c.Name] = t
		}
	}
	return r
}

// Lookup classifies a lower-cased tag name.
func (r *Registry) Lookup(name string) Tag {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return TagHeading
	}
	if t, ok := r.byName[name]; ok {
		return t
	}
	return TagUnknown
}

// Contract returns the contract for a built-in tag.
func (r *Registry) Contract(t Tag) Contract {
	if t <= TagUnknown || t >= tagCount {
		return Contract{}
	}
	return r.contracts[t]
}

// Extra returns the contract registered for a non built-in tag.
func (r *Registry) Extra(name string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.extra[name]
	return c, ok
}

// Extend registers a contract for a tag outside the built-in set. Built-in
// names cannot be redefined.
func (r *Registry) Extend(c Contract) error {
	if c.Name == "" {
		return fmt.Errorf("tag contract needs a name")
	}
	if r.Lookup(c.Name) != TagUnknown {
		return fmt.Errorf("tag %q is built in", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extra[c.Name] = c
	return nil
}

// Validate reports built-in tags that lack a contract.
func (r *Registry) Validate() error {
	for t := TagUnknown + 1; t < tagCount; t++ {
		if r.contracts[t].Name == "" {
			return fmt.Errorf("tag %d has no contract", t)
		}
	}
	return nil
}

func defaultContract(t Tag) Contract {
	switch t {
	case TagFrontmatter:
		return Contract{Name: "frontmatter"}
	case TagInclude:
		return Contract{Name: "include", LinkAttr: "src"}
	case TagPanel:
		return Contract{Name: "panel", LinkAttr: "src", Slots: []SlotRule{
			{Attribute: "alt", Slot: "_alt"},
			{Attribute: "header", PreemptedBySlot: true},
		}}
	case TagPopover:
		return Contract{Name: "popover", LinkAttr: "src", Slots: []SlotRule{
			{Attribute: "header", Inline: true, PreemptedBySlot: true},
			{Attribute: "content", Inline: true, PreemptedBySlot: true},
		}}
	case TagTooltip:
		return Contract{Name: "tooltip", Slots: []SlotRule{{Attribute: "content", Inline: true}}}
	case TagModal:
		return Contract{Name: "modal", Slots: []SlotRule{{Attribute: "header", Inline: true, PreemptedBySlot: true}}}
	case TagTab:
		return Contract{Name: "tab", Slots: []SlotRule{{Attribute: "header", Inline: true}}}
	case TagTabGroup:
		return Contract{Name: "tab-group", Slots: []SlotRule{{Attribute: "header", Inline: true}}}
	case TagBox:
		return Contract{Name: "box", Slots: []SlotRule{
			{Attribute: "icon", Inline: true},
			{Attribute: "header"},
		}}
	case TagDropdown:
		return Contract{Name: "dropdown", Slots: []SlotRule{{Attribute: "header", Inline: true, PreemptedBySlot: true}}}
	case TagThumbnail:
		return Contract{Name: "thumbnail", LinkAttr: "src"}
	case TagQuestion:
		return Contract{Name: "question", Slots: []SlotRule{
			{Attribute: "header"},
			{Attribute: "hint"},
			{Attribute: "answer"},
		}}
	case TagQOption:
		return Contract{Name: "q-option", Slots: []SlotRule{{Attribute: "reason"}}}
	case TagQuiz:
		return Contract{Name: "quiz", Slots: []SlotRule{{Attribute: "intro"}}}
	case TagMd:
		return Contract{Name: "md", Rename: "span"}
	case TagMarkdown:
		return Contract{Name: "markdown", Rename: "div"}
	case TagFootnotes:
		return Contract{Name: "mb-temp-footnotes"}
	case TagHeadTop:
		return Contract{Name: "head-top"}
	case TagHeadBottom:
		return Contract{Name: "head-bottom"}
	case TagScriptBottom:
		return Contract{Name: "script-bottom"}
	case TagVariable:
		return Contract{Name: "variable"}
	case TagHeading:
		return Contract{Name: "h1-h6"}
	case TagCode:
		return Contract{Name: "code", VPre: true}
	case TagAnchor:
		return Contract{Name: "a", LinkAttr: "href"}
	case TagLink:
		return Contract{Name: "link", LinkAttr: "href"}
	case TagImg:
		return Contract{Name: "img", LinkAttr: "src"}
	case TagPic:
		return Contract{Name: "pic", LinkAttr: "src"}
	case TagScript:
		return Contract{Name: "script", LinkAttr: "src"}
	default:
		return Contract{}
	}
}
