package proto

// BehaviorEntry is the catalog entry shape returned by GetDanceBehaviors and
// GetBodyActionBehaviors.
type BehaviorEntry struct {
	ID            string         `json:"id"`
	BehaviorName  string         `json:"behaviorName"`
	LocalizedName LocalizedEntry `json:"localizedName"`
	Description   string         `json:"description"`
}

// LocalizedEntry carries a display name per language tag.
type LocalizedEntry struct {
	EnUS string `json:"en_US"`
	FrFR string `json:"fr_FR"`
}
