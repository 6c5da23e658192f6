package clustering

// Quadrant thresholds.
const (
	highEnergy   = 0.6
	highValence  = 0.5
	highAcoustic = 0.6
)

// moodName names a centroid using a 2x2 energy/valence quadrant:
//
//   - high energy, high valence: "Upbeat Party"
//   - high energy, low valence:  "Intense & Dark"
//   - low energy, high valence:  "Chill & Happy"
//   - low energy, low valence:   "Reflective & Melancholy"
//
// Highly acoustic centroids get an " (Acoustic)" suffix.
func moodName(c Centroid) string {
	var name string
	switch {
	case c.Energy > highEnergy && c.Valence > highValence:
		name = "Upbeat Party"
	case c.Energy > highEnergy:
		name = "Intense & Dark"
	case c.Valence > highValence:
		name = "Chill & Happy"
	default:
		name = "Reflective & Melancholy"
	}

	if c.Acousticness > highAcoustic {
		return name + " (Acoustic)"
	}
	return name
}

func moodDescription(c Centroid) string {
	switch {
	case c.Energy > highEnergy && c.Valence > highValence:
		return "High-energy, positive vibes for dancing and celebrations"
	case c.Energy > highEnergy:
		return "Intense, driving energy with darker emotional tones"
	case c.Valence > highValence:
		return "Relaxed and uplifting, good for unwinding"
	default:
		return "Contemplative and introspective, for quiet moments"
	}
}
