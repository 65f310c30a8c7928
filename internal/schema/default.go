package schema

// Default returns the built-in demographic classification. Rate columns are
// recombined by population unless configured otherwise. The published layout
// replaces the group counts with percentages of population.
func Default() *Schema {
	counts := []string{
		"total-poverty-pop",
		"poverty-pop",
		"occupied-housing-units",
		"renter-occupied-households",
		"hispanic-pop",
		"white-pop",
		"af-am-pop",
		"am-ind-pop",
		"asian-pop",
		"nh-pi-pop",
		"other-pop",
		"multiple-pop",
	}
	rates := []string{
		"median-gross-rent",
		"median-household-income",
		"median-property-value",
		"rent-burden",
	}

	s := &Schema{
		DefaultBase: "population",
		Columns:     map[string]Column{"population": {Kind: Base}},
		Variables: map[string]string{
			"NAME":        "name",
			"B01003_001E": "population",
			"B17010_001E": "total-poverty-pop",
			"B17010_002E": "poverty-pop",
			"B25064_001E": "median-gross-rent",
			"B25003_001E": "occupied-housing-units",
			"B25003_003E": "renter-occupied-households",
			"B19013_001E": "median-household-income",
			"B25077_001E": "median-property-value",
			"B25071_001E": "rent-burden",
			"B03002_012E": "hispanic-pop",
			"B03002_003E": "white-pop",
			"B03002_004E": "af-am-pop",
			"B03002_005E": "am-ind-pop",
			"B03002_006E": "asian-pop",
			"B03002_007E": "nh-pi-pop",
			"B03002_008E": "other-pop",
			"B03002_009E": "multiple-pop",
		},
	}
	for _, c := range counts {
		s.Columns[c] = Column{Kind: Count}
	}
	for _, r := range rates {
		s.Columns[r] = Column{Kind: Rate}
	}

	s.Derived = []Derived{
		{Name: "poverty-rate", Numerator: "poverty-pop", Denominator: "total-poverty-pop", Fallback: "population"},
		{Name: "pct-renter-occupied", Numerator: "renter-occupied-households", Denominator: "occupied-housing-units"},
	}
	for _, dem := range []string{"hispanic", "white", "af-am", "am-ind", "asian", "nh-pi", "other", "multiple"} {
		s.Derived = append(s.Derived, Derived{Name: "pct-" + dem, Numerator: dem + "-pop", Denominator: "population"})
	}
	s.Output = []string{
		"population",
		"poverty-rate",
		"pct-renter-occupied",
		"median-gross-rent",
		"median-household-income",
		"median-property-value",
		"rent-burden",
		"pct-white",
		"pct-af-am",
		"pct-hispanic",
		"pct-am-ind",
		"pct-asian",
		"pct-nh-pi",
		"pct-multiple",
		"pct-other",
	}
	places := 2
	s.Round = &places
	return s
}
