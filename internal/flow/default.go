package flow

// Default returns the built-in sales flow used by the simulator and by
// `rudder validate --example`. Real deployments load their own specification;
// nothing in the engine depends on these particular states or actions.
func Default() *Specification {
	return &Specification{
		Tenant:        "default",
		InitialState:  "greeting",
		DefaultIntent: "general",
		DefaultAction: "continue_conversation",
		Escalation: Escalation{
			Action: "escalate_to_human",
			State:  "human_handoff",
		},
		ForcedForward:     "qualification",
		DeflectionActions: []string{"defer_question", "redirect_topic"},
		Limits: Limits{
			MaxGoBacks:               2,
			MaxConsecutiveObjections: 2,
			MaxTotalObjections:       4,
		},
		PhaseOrder: []string{
			"greeting", "discovery", "qualification",
			"presentation", "negotiation", "closing", "payment_ready",
		},
		RequiredFields:         []string{"name", "contact"},
		CompletenessTransition: "closing",
		States: map[string]StateSpec{
			"greeting": {
				Transitions: []string{"discovery"},
				Rules: []Rule{
					{Intent: "greeting", Action: "greet_back"},
					{Intent: "product_question", Action: "answer_product", Transition: "discovery"},
					{Intent: "price_question", Action: "answer_price", Transition: "discovery"},
				},
			},
			"discovery": {
				Transitions: []string{"qualification", "greeting"},
				Rules: []Rule{
					{Intent: "product_question", Action: "answer_product"},
					{Intent: "price_question", Action: "answer_price"},
					{Intent: "interest", Action: "probe_needs", Transition: "qualification"},
				},
			},
			"qualification": {
				Transitions: []string{"presentation", "discovery"},
				Rules: []Rule{
					{Intent: "provide_data", Action: "acknowledge_data"},
					{Intent: "interest", Action: "present_offer", Transition: "presentation"},
					{Intent: "price_question", Action: "answer_price"},
				},
			},
			"presentation": {
				Transitions: []string{"negotiation", "qualification"},
				Rules: []Rule{
					{Intent: "interest", Action: "discuss_terms", Transition: "negotiation"},
					{Intent: "price_question", Action: "answer_price"},
				},
			},
			"negotiation": {
				Transitions: []string{"closing", "presentation"},
				Rules: []Rule{
					{Intent: "acceptance", Action: "confirm_terms", Transition: "closing"},
					{Intent: "price_question", Action: "answer_price"},
				},
			},
			"closing": {
				Transitions: []string{"payment_ready", "negotiation"},
				Rules: []Rule{
					{Intent: "acceptance", Action: "prepare_payment", Transition: "payment_ready"},
				},
			},
			"payment_ready": {
				Terminal: true,
			},
			"human_handoff": {
				Terminal: true,
			},
		},
		Sources: []SourceSpec{
			{ID: "escalation_trigger", Priority: 100},
			{ID: "objection_guard", Priority: 90},
			{ID: "data_completeness", Priority: 60},
			{ID: "price_question", Priority: 50},
			{ID: "intent_transition", Priority: 40},
			{ID: "intent_action", Priority: 30},
			{ID: "composite_message", Priority: 25},
			{ID: "stall_detector", Priority: 20},
			{ID: "repetition_detector", Priority: 10},
		},
		Intents: []IntentPattern{
			{Intent: "greeting", Patterns: []WeightedPattern{
				{Pattern: `\b(hello|hi|hey|good (morning|afternoon|evening))\b`, Weight: 1.0},
			}},
			{Intent: "price_question", Patterns: []WeightedPattern{
				{Pattern: `\b(how much|price|cost|pricing|rates?)\b`, Weight: 1.2},
				{Pattern: `\bwhat.{0,20}(charge|pay)\b`, Weight: 0.9},
			}},
			{Intent: "product_question", Patterns: []WeightedPattern{
				{Pattern: `\b(what (is|does)|how (does|do)|tell me about|features?)\b`, Weight: 1.0},
			}},
			{Intent: "interest", Patterns: []WeightedPattern{
				{Pattern: `\b(interested|sounds good|i like|let'?s do|tell me more)\b`, Weight: 1.1},
			}},
			{Intent: "acceptance", Patterns: []WeightedPattern{
				{Pattern: `\b(yes|ok(ay)?|deal|agreed?|sign me up|let'?s go)\b`, Weight: 1.0},
			}},
			{Intent: "provide_data", Patterns: []WeightedPattern{
				{Pattern: `\b(my name is|i'?m called|you can reach me|my (email|phone|number) is)\b`, Weight: 1.2},
			}},
			{Intent: "human_request", Patterns: []WeightedPattern{
				{Pattern: `\b(human|real person|agent|representative|speak to someone)\b`, Weight: 1.2},
			}},
		},
		Objections: []ObjectionPattern{
			{
				Type:     "price",
				Patterns: []string{`\btoo expensive\b`, `\bcan'?t afford\b`, `\bout of (my )?budget\b`},
				Phrases:  []string{"that is too expensive", "i cannot afford it", "it is out of my budget"},
			},
			{
				Type:     "trust",
				Patterns: []string{`\b(scam|don'?t trust|not sure about you)\b`},
				Phrases:  []string{"i do not trust this", "this looks like a scam"},
			},
			{
				Type:     "timing",
				Patterns: []string{`\b(not now|maybe later|next (month|year)|too busy)\b`},
				Phrases:  []string{"this is not a good time", "maybe later this year"},
			},
			{
				Type:     "need",
				Patterns: []string{`\b(don'?t need|no use for|already have)\b`},
				Phrases:  []string{"i do not need this", "i already have one"},
			},
		},
		ObjectionActions: map[string]string{
			"price":  "handle_price_objection",
			"trust":  "handle_trust_objection",
			"timing": "handle_timing_objection",
			"need":   "handle_need_objection",
		},
	}
}
