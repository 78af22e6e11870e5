package robot

// LocalizedString holds the display name of a behavior per language.
type LocalizedString struct {
	EnUS string `json:"en_US"`
	FrFR string `json:"fr_FR"`
}

// Behavior is one invocable catalog entry.
type Behavior struct {
	ID            string          `json:"id"`
	BehaviorName  string          `json:"behaviorName"` // full path understood by the robot's behavior manager
	LocalizedName LocalizedString `json:"localizedName"`
	Description   string          `json:"description"`
}

// Catalogs groups the three queryable behavior catalogs. Identity is stable
// for the lifetime of a session.
type Catalogs struct {
	Dances      []Behavior
	Reactions   map[string][]Behavior // keyed by reaction type, e.g. "Happy"
	BodyActions []Behavior
}

// Dance returns the dance with the given id.
func (c *Catalogs) Dance(id string) (Behavior, bool) {
	return findBehavior(c.Dances, id)
}

// BodyAction returns the body action with the given id.
func (c *Catalogs) BodyAction(id string) (Behavior, bool) {
	return findBehavior(c.BodyActions, id)
}

// ReactionTypes returns the known reaction types in stable order.
func (c *Catalogs) ReactionTypes() []string {
	types := make([]string, 0, len(c.Reactions))
	for _, t := range reactionTypeOrder {
		if _, ok := c.Reactions[t]; ok {
			types = append(types, t)
		}
	}
	for t := range c.Reactions {
		if !containsString(types, t) {
			types = append(types, t)
		}
	}
	return types
}

func findBehavior(list []Behavior, id string) (Behavior, bool) {
	for _, b := range list {
		if b.ID == id {
			return b, true
		}
	}
	return Behavior{}, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var reactionTypeOrder = []string{"Happy", "Proud", "Laugh", "Sad", "HeadTouched"}

// simCatalogs is the fixed catalog set served by SimBackend. It is large
// enough to exercise id-based invoke/stop round trips without hardware.
func simCatalogs() *Catalogs {
	return &Catalogs{
		Dances: []Behavior{
			{
				ID:            "caravan-palace-se",
				BehaviorName:  "caravan-palace-se",
				LocalizedName: LocalizedString{EnUS: "Electro Swing", FrFR: "Electro Swing"},
				Description:   "The robot dances on Electro Swing music.",
			},
			{
				ID:            "eagle-dance",
				BehaviorName:  "eagle-dance",
				LocalizedName: LocalizedString{EnUS: "Eagle Dance", FrFR: "La danse de l'aigle"},
				Description:   "A slow dance with impressive moves balanced on one foot.",
			},
			{
				ID:            "gangnam-style",
				BehaviorName:  "gangnam-style",
				LocalizedName: LocalizedString{EnUS: "Gangnam Style", FrFR: "Gangnam style"},
				Description:   "Gangnam style dance.",
			},
			{
				ID:            "thriller-dance",
				BehaviorName:  "thriller-dance",
				LocalizedName: LocalizedString{EnUS: "The thriller dance", FrFR: "La danse thriller"},
				Description:   "The robot dances on Michael Jackson's thriller.",
			},
		},
		Reactions: map[string][]Behavior{
			"Happy": {
				{
					ID:            "animations/Stand/Emotions/Positive/Happy_1",
					BehaviorName:  "animations/Stand/Emotions/Positive/Happy_1",
					LocalizedName: LocalizedString{EnUS: "Happy", FrFR: "Content"},
					Description:   "A happy reaction.",
				},
			},
			"Proud": {
				{
					ID:            "animations/Stand/Emotions/Positive/Proud_1",
					BehaviorName:  "animations/Stand/Emotions/Positive/Proud_1",
					LocalizedName: LocalizedString{EnUS: "Proud", FrFR: "Fier"},
					Description:   "A proud reaction.",
				},
			},
			"Laugh": {
				{
					ID:            "animations/Stand/Emotions/Positive/Laugh_1",
					BehaviorName:  "animations/Stand/Emotions/Positive/Laugh_1",
					LocalizedName: LocalizedString{EnUS: "Laugh", FrFR: "Rire"},
					Description:   "A laughing reaction.",
				},
			},
			"Sad": {
				{
					ID:            "animations/Stand/Emotions/Negative/Sad_1",
					BehaviorName:  "animations/Stand/Emotions/Negative/Sad_1",
					LocalizedName: LocalizedString{EnUS: "Sad", FrFR: "Triste"},
					Description:   "A sad reaction.",
				},
			},
			"HeadTouched": {
				{
					ID:            "dialog_touch/animations/head_touched",
					BehaviorName:  "dialog_touch/animations/head_touched",
					LocalizedName: LocalizedString{EnUS: "Head touched", FrFR: "Tête touchée"},
					Description:   "Reaction to the head being touched.",
				},
			},
		},
		BodyActions: []Behavior{
			{
				ID:            "StretchBothArms",
				BehaviorName:  "dialog_move_arms/animations/StretchBothArms",
				LocalizedName: LocalizedString{EnUS: "Stretch both arms", FrFR: "Etire les deux bras"},
				Description:   "Stretch both arms",
			},
			{
				ID:            "StretchLArm",
				BehaviorName:  "dialog_move_arms/animations/StretchLArm",
				LocalizedName: LocalizedString{EnUS: "Stretch left arm", FrFR: "Etire le bras gauche"},
				Description:   "Stretch left arm",
			},
			{
				ID:            "StretchRArm",
				BehaviorName:  "dialog_move_arms/animations/StretchRArm",
				LocalizedName: LocalizedString{EnUS: "Stretch right arm", FrFR: "Etire le bras droit"},
				Description:   "Stretch right arm",
			},
			{
				ID:            "UpBothArms",
				BehaviorName:  "dialog_move_arms/animations/UpBothArms",
				LocalizedName: LocalizedString{EnUS: "Raise both arms", FrFR: "Lève les deux bras"},
				Description:   "Raise both arms",
			},
			{
				ID:            "UpLArm",
				BehaviorName:  "dialog_move_arms/animations/UpLArm",
				LocalizedName: LocalizedString{EnUS: "Raise left arm", FrFR: "Lève le bras gauche"},
				Description:   "Raise left arm",
			},
			{
				ID:            "UpRArm",
				BehaviorName:  "dialog_move_arms/animations/UpRArm",
				LocalizedName: LocalizedString{EnUS: "Raise right arm", FrFR: "Lève le bras droit"},
				Description:   "Raise right arm",
			},
		},
	}
}
