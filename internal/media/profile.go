package media

// VideoConstraints are the preferred capture settings for one ladder tier.
// Zero values mean "no preference".
type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate int
}

// Profile is one tier of the acquisition quality ladder. A nil Video means
// the tier is audio-only.
type Profile struct {
	Label string
	Video *VideoConstraints
	Audio bool
}

// DefaultLadder is the descending quality ladder tried by Acquire. Kept as
// data so tiers can be tuned or replaced in tests.
var DefaultLadder = []Profile{
	{Label: "hd", Video: &VideoConstraints{Width: 1280, Height: 720, FrameRate: 30}, Audio: true},
	{Label: "sd", Video: &VideoConstraints{Width: 640, Height: 360, FrameRate: 24}, Audio: true},
	{Label: "best-effort", Video: &VideoConstraints{}, Audio: true},
	{Label: "audio-only", Audio: true},
}
