// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package catalog

// defaultCatalog returns the built-in reference data. A deployment can
// override any of it with a YAML catalog file; most installations run with
// these curated tables as-is.
func defaultCatalog() *Catalog {
	return &Catalog{
		Devices: []Device{
			{
				ID:   "medtronic-780g",
				Name: "Medtronic MiniMed 780G",
				Dimensions: map[string]string{
					"tubing":          "tubed",
					"battery":         "aa",
					"algorithm":       "aggressive",
					"phoneControl":    "view",
					"waterResistance": "submersible",
					"interface":       "buttons",
					"costTier":        "mid",
					"clinicSupport":   "high",
					"cgm":             "guardian",
				},
				Pros: []string{
					"Most aggressive auto-correction algorithm",
					"AA battery, no charging routine",
					"Wide clinic familiarity and trainer coverage",
				},
				Cons: []string{
					"Tubed infusion sets",
					"Proprietary CGM pairing",
				},
			},
			{
				ID:   "tandem-tslim-x2",
				Name: "Tandem t:slim X2",
				Dimensions: map[string]string{
					"tubing":          "tubed",
					"battery":         "rechargeable",
					"algorithm":       "standard",
					"phoneControl":    "view",
					"waterResistance": "splash",
					"interface":       "touchscreen",
					"costTier":        "mid",
					"clinicSupport":   "high",
					"cgm":             "dexcom",
				},
				Pros: []string{
					"Touchscreen interface with remote software updates",
					"Strong predictive low-glucose suspend",
					"Dexcom integration",
				},
				Cons: []string{
					"Needs regular charging",
					"Not rated for submersion",
				},
			},
			{
				ID:   "tandem-mobi",
				Name: "Tandem Mobi",
				Dimensions: map[string]string{
					"tubing":          "tubed",
					"battery":         "rechargeable",
					"algorithm":       "standard",
					"phoneControl":    "full",
					"waterResistance": "submersible",
					"interface":       "phone",
					"costTier":        "mid",
					"clinicSupport":   "medium",
					"cgm":             "dexcom",
				},
				Pros: []string{
					"Smallest tubed pump, fully phone-controlled",
					"Submersible",
				},
				Cons: []string{
					"Short tubing still present",
					"Requires a compatible phone",
				},
			},
			{
				ID:   "omnipod-5",
				Name: "Omnipod 5",
				Dimensions: map[string]string{
					"tubing":          "tubeless",
					"battery":         "integrated",
					"algorithm":       "standard",
					"phoneControl":    "full",
					"waterResistance": "submersible",
					"interface":       "phone",
					"costTier":        "low",
					"clinicSupport":   "medium",
					"cgm":             "dexcom",
				},
				Pros: []string{
					"Tubeless pod, nothing to disconnect",
					"Pharmacy-channel pricing, lower upfront cost",
					"Waterproof pod",
				},
				Cons: []string{
					"Pod changed every three days regardless of remaining insulin",
					"Controller or phone must stay nearby",
				},
			},
			{
				ID:   "beta-bionics-ilet",
				Name: "Beta Bionics iLet",
				Dimensions: map[string]string{
					"tubing":          "tubed",
					"battery":         "rechargeable",
					"algorithm":       "simple",
					"phoneControl":    "none",
					"waterResistance": "splash",
					"interface":       "touchscreen",
					"costTier":        "low",
					"clinicSupport":   "medium",
					"cgm":             "dexcom",
				},
				Pros: []string{
					"No carb counting, meal announcements only",
					"Minimal settings to manage",
				},
				Cons: []string{
					"Less fine-grained control for experienced users",
					"Not rated for submersion",
				},
			},
			{
				ID:   "twiist",
				Name: "Sequel Twiist",
				Dimensions: map[string]string{
					"tubing":          "tubed",
					"battery":         "rechargeable",
					"algorithm":       "standard",
					"phoneControl":    "full",
					"waterResistance": "splash",
					"interface":       "phone",
					"costTier":        "mid",
					"clinicSupport":   "low",
					"cgm":             "libre",
				},
				Pros: []string{
					"Lightest pump on the market",
					"Full phone control with Libre integration",
				},
				Cons: []string{
					"Newest entrant, limited clinic experience",
				},
			},
		},

		Personas: []Persona{
			{
				ID:          "tech-forward",
				Name:        "Tech-forward optimizer",
				Description: "Comfortable with apps and data, wants every control surface available",
				Keywords:    []string{"technology", "app", "data", "smart", "gadget", "automation"},
				Matches: []PersonaMatch{
					{DeviceID: "tandem-mobi", Score: 92, Reasons: []string{"Fully phone-controlled", "Frequent software updates"}},
					{DeviceID: "tandem-tslim-x2", Score: 88, Reasons: []string{"Touchscreen with field-updatable firmware"}},
					{DeviceID: "twiist", Score: 82, Reasons: []string{"Phone-first design with emerging integrations"}},
					{DeviceID: "omnipod-5", Score: 78, Reasons: []string{"App-driven tubeless system"}},
				},
			},
			{
				ID:          "active-lifestyle",
				Name:        "Active and outdoors",
				Description: "Swims, trains or works physically; needs a device that keeps up",
				Keywords:    []string{"active", "swim", "sport", "run", "gym", "outdoors", "water"},
				Matches: []PersonaMatch{
					{DeviceID: "omnipod-5", Score: 94, Reasons: []string{"Waterproof pod, no tubing to snag"}},
					{DeviceID: "tandem-mobi", Score: 86, Reasons: []string{"Small, submersible, easy to tuck away"}},
					{DeviceID: "medtronic-780g", Score: 76, Reasons: []string{"Submersible with robust hardware"}},
				},
			},
			{
				ID:          "simplicity-first",
				Name:        "Simplicity first",
				Description: "Wants the fewest decisions per day, minimal fiddling",
				Keywords:    []string{"simple", "easy", "minimal", "overwhelmed", "basic", "straightforward"},
				Matches: []PersonaMatch{
					{DeviceID: "beta-bionics-ilet", Score: 95, Reasons: []string{"No carb counting, minimal settings"}},
					{DeviceID: "omnipod-5", Score: 84, Reasons: []string{"Simple pod routine, no tubing management"}},
					{DeviceID: "medtronic-780g", Score: 72, Reasons: []string{"Set-and-forget automation once trained"}},
				},
			},
			{
				ID:          "tight-control",
				Name:        "Tight-control seeker",
				Description: "Chasing the flattest possible glucose curve, accepts more interaction",
				Keywords:    []string{"tight", "control", "a1c", "precise", "aggressive", "perfect"},
				Matches: []PersonaMatch{
					{DeviceID: "medtronic-780g", Score: 93, Reasons: []string{"Most aggressive correction algorithm", "Adjustable targets down to 100 mg/dL"}},
					{DeviceID: "tandem-tslim-x2", Score: 87, Reasons: []string{"Fine-grained profiles with proven algorithm"}},
					{DeviceID: "tandem-mobi", Score: 80, Reasons: []string{"Same algorithm in a smaller body"}},
				},
			},
			{
				ID:          "budget-conscious",
				Name:        "Budget conscious",
				Description: "Coverage and out-of-pocket cost dominate the decision",
				Keywords:    []string{"cost", "insurance", "afford", "budget", "cheap", "coverage", "copay"},
				Matches: []PersonaMatch{
					{DeviceID: "omnipod-5", Score: 90, Reasons: []string{"Pharmacy benefit pricing, low startup cost"}},
					{DeviceID: "beta-bionics-ilet", Score: 83, Reasons: []string{"Competitive pricing programs"}},
					{DeviceID: "medtronic-780g", Score: 75, Reasons: []string{"Broad insurance contracts via DME channel"}},
				},
			},
		},

		Eliminations: []EliminationRule{
			{
				Trigger:             "no_tubing",
				EliminatedDeviceIDs: []string{"medtronic-780g", "tandem-tslim-x2", "tandem-mobi", "beta-bionics-ilet", "twiist"},
				Reason:              "Patient will not wear a tubed pump",
			},
			{
				Trigger:             "cannot_charge_daily",
				EliminatedDeviceIDs: []string{"tandem-tslim-x2", "tandem-mobi", "beta-bionics-ilet", "twiist"},
				Reason:              "Patient cannot maintain a charging routine",
			},
			{
				Trigger:             "must_be_waterproof",
				EliminatedDeviceIDs: []string{"tandem-tslim-x2", "beta-bionics-ilet", "twiist"},
				Reason:              "Daily water exposure requires a submersible device",
			},
			{
				Trigger:             "no_phone_dependence",
				EliminatedDeviceIDs: []string{"tandem-mobi", "twiist"},
				Reason:              "Patient will not rely on a phone to control the pump",
			},
		},

		ClinicalRules: []ClinicalRule{
			{Factor: "a1c", Value: "above_9", DeviceID: "medtronic-780g", Boost: 8,
				Reason: "Aggressive auto-correction suits an elevated A1C"},
			{Factor: "hypo_frequency", Value: "frequent", DeviceID: "tandem-tslim-x2", Boost: 6,
				Reason: "Predictive low-glucose suspend addresses frequent lows"},
			{Factor: "dexterity", Value: "limited", DeviceID: "omnipod-5", Boost: 5,
				Reason: "No tubing connections to manipulate"},
			{Factor: "dexterity", Value: "limited", DeviceID: "beta-bionics-ilet", Boost: 5,
				Reason: "Minimal interaction surface"},
			{Factor: "carb_counting", Value: "unable", DeviceID: "beta-bionics-ilet", Boost: 7,
				Reason: "Meal announcements replace carb counting"},
		},

		Preferences: map[string]map[string][]Preference{
			"primary_priority": {
				"cost": {
					{Dimension: "costTier", Value: "low", Weight: 3},
					{Dimension: "battery", Value: "aa", Weight: 1},
					{Dimension: "clinicSupport", Value: "high", Weight: 1},
				},
				"control": {
					{Dimension: "algorithm", Value: "aggressive", Weight: 3},
					{Dimension: "clinicSupport", Value: "high", Weight: 1},
				},
				"simplicity": {
					{Dimension: "algorithm", Value: "simple", Weight: 3},
					{Dimension: "interface", Value: "touchscreen", Weight: 1},
				},
				"discretion": {
					{Dimension: "tubing", Value: "tubeless", Weight: 2},
					{Dimension: "interface", Value: "phone", Weight: 1},
				},
			},
			"form_factor": {
				"tubeless": {
					{Dimension: "tubing", Value: "tubeless", Weight: 3},
				},
				"tubed": {
					{Dimension: "tubing", Value: "tubed", Weight: 2},
				},
				// "either" carries no preference and maps to nothing.
			},
			"tech_comfort": {
				"high": {
					{Dimension: "interface", Value: "phone", Weight: 2},
					{Dimension: "phoneControl", Value: "full", Weight: 2},
				},
				"low": {
					{Dimension: "interface", Value: "buttons", Weight: 2},
					{Dimension: "phoneControl", Value: "none", Weight: 1},
				},
			},
			"activity_level": {
				"high": {
					{Dimension: "waterResistance", Value: "submersible", Weight: 2},
					{Dimension: "tubing", Value: "tubeless", Weight: 1},
				},
			},
			"water_exposure": {
				"daily": {
					{Dimension: "waterResistance", Value: "submersible", Weight: 3},
				},
			},
			"battery_preference": {
				"aa": {
					{Dimension: "battery", Value: "aa", Weight: 2},
				},
				"rechargeable": {
					{Dimension: "battery", Value: "rechargeable", Weight: 1},
				},
			},
			"phone_control": {
				"yes": {
					{Dimension: "phoneControl", Value: "full", Weight: 2},
				},
				"no": {
					{Dimension: "phoneControl", Value: "none", Weight: 2},
				},
			},
			"algorithm_style": {
				"aggressive": {
					{Dimension: "algorithm", Value: "aggressive", Weight: 3},
				},
				"simple": {
					{Dimension: "algorithm", Value: "simple", Weight: 3},
				},
			},
		},

		KeywordBuckets: []KeywordBucket{
			{Name: "technology", Terms: []string{"tech", "app", "data", "smart", "automat", "gadget"}},
			{Name: "activity", Terms: []string{"active", "swim", "sport", "run", "gym", "hik", "water"}},
			{Name: "simplicity", Terms: []string{"simple", "easy", "minimal", "overwhelm", "basic"}},
			{Name: "control", Terms: []string{"tight", "control", "a1c", "precise", "aggressive", "perfect"}},
			{Name: "cost", Terms: []string{"cost", "insurance", "afford", "budget", "cheap", "coverage"}},
		},
	}
}
