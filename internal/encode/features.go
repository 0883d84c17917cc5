package encode

// Engineered scalar features for the offline dataset export path. This is a
// flat view of perception for external analysis tools; the network itself
// trains on the full perception/memory tensors, not on these columns.

// NumFeatures is the width of a derived feature row.
const NumFeatures = 13

// FeatureNames enumerates the derived columns, in row order.
func FeatureNames() []string {
	return []string{
		"hunger", "energy", "social", "curiosity", "safety",
		"time_of_day",
		"weather_clear", "weather_rain", "weather_storm",
		"nearby_food", "nearby_shelter", "nearby_npcs", "memory_count",
	}
}

// ClassNames enumerates the action classes, in label order.
func ClassNames() []string {
	names := make([]string, NumActions)
	for i := range names {
		names[i] = ActionName(i)
	}
	return names
}

// EncodeFeatures builds the 13-column derived row for one perception record.
func EncodeFeatures(p *PerceptionRecord) []float32 {
	row := make([]float32, 0, NumFeatures)

	n := p.Needs
	row = append(row, n.Hunger, n.Energy, n.Social, n.Curiosity, n.Safety)

	timeOfDay := float32(0.5)
	if p.TimeOfDay != nil {
		timeOfDay = *p.TimeOfDay
	}
	row = append(row, timeOfDay)

	for _, w := range []string{"clear", "rain", "storm"} {
		if p.Weather == w {
			row = append(row, 1)
		} else {
			row = append(row, 0)
		}
	}

	_, food, shelter := countTiles(p.NearbyTiles)
	row = append(row, capAt1(float32(food)/10))
	row = append(row, capAt1(float32(shelter)/10))
	row = append(row, capAt1(float32(len(p.NearbyNPCs))/10))
	row = append(row, capAt1(float32(len(p.MemoryRecalls))/5))

	return row
}
