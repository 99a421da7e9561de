package kgextract

// EntityTypes is the fixed controlled vocabulary used in the entity
// extraction JSON schema, reproduced verbatim from
// original_source/runtime/src/ai/schemas.rs's ENTITY_TYPE_VARIANTS.
var EntityTypes = []string{
	"Researcher",
	"Clinician",
	"Patient / Participant",
	"Institution / Organization",
	"Funding Agency",
	"Gene",
	"Protein",
	"RNA",
	"Cell",
	"Tissue",
	"Organ",
	"Organism / Species",
	"Disease / Disorder",
	"Syndrome",
	"Symptom / Phenotype",
	"Pathway",
	"Drug / Compound / Chemical Substance",
	"Biomarker",
	"Reagent",
	"Material",
	"Method / Technique / Assay / Protocol",
	"Equipment / Instrument",
	"Sample / Specimen",
	"Control / Variable",
	"Measurement / Metric",
	"Dataset",
	"Model (computational, statistical, or biological)",
	"Hypothesis / Objective",
	"Result / Observation / Finding",
	"Theory / Concept",
	"Parameter",
	"Clinical Trial",
	"Project / Study",
	"Ethical Approval / Consent",
	"Time / Duration / Temporal Stage",
	"Location",
	"Publication / Reference",
}

// ExtractedEntity is one entity surfaced by a structured extraction call.
type ExtractedEntity struct {
	EntityName        string `json:"entity_name"`
	EntityType        string `json:"entity_type"`
	EntityDescription string `json:"entity_description"`
}

// ExtractedRelationship is one directed relationship surfaced by a
// structured extraction call, referencing entities by name (resolved to
// ids by the scheduler after the call returns).
type ExtractedRelationship struct {
	SourceEntity            string   `json:"source_entity"`
	TargetEntity            string   `json:"target_entity"`
	RelationshipKeywords    []string `json:"relationship_keywords"`
	RelationshipDescription string   `json:"relationship_description"`
}

// EntitiesRelationships is the structured-output payload shape.
type EntitiesRelationships struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// EntitiesRelationshipsSchemaName is the JSON-schema response-format name
// used on the create request.
const EntitiesRelationshipsSchemaName = "entities_relationships"

// EntitiesRelationshipsSchema builds the JSON schema constraining the
// structured-output call, ported from
// original_source/runtime/src/ai/schemas.rs's entities_relationships_schema
// (including its field descriptions and the 37-entry controlled
// vocabulary).
func EntitiesRelationshipsSchema() map[string]any {
	entityTypeEnum := make([]any, len(EntityTypes))
	for i, t := range EntityTypes {
		entityTypeEnum[i] = t
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"entity_name": map[string]any{
							"type":        "string",
							"description": "The name of the entity. If the entity name is case-insensitive, capitalize the first letter of each significant word (title case). Ensure consistent naming across the entire extraction process.",
						},
						"entity_type": map[string]any{
							"type":        "string",
							"enum":        entityTypeEnum,
							"description": "Categorize the entity using one of the following controlled vocabulary. If none of the provided entity types apply, do not add a new entity type and classify it as `Other`.",
						},
						"entity_description": map[string]any{
							"type":        "string",
							"description": "Provide a concise yet comprehensive description of the entity's attributes and activities, based solely on the information present in the input text.",
						},
					},
					"required": []any{"entity_name", "entity_type", "entity_description"},
				},
			},
			"relationships": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"source_entity": map[string]any{
							"type":        "string",
							"description": "The name of the source entity. Ensure consistent naming with entity extraction.",
						},
						"target_entity": map[string]any{
							"type":        "string",
							"description": "The name of the target entity. Ensure consistent naming with entity extraction.",
						},
						"relationship_keywords": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
							"description": "One or more high-level keywords summarizing the overarching nature, concepts, or themes of the relationship.",
						},
						"relationship_description": map[string]any{
							"type":        "string",
							"description": "Explain the nature of the relationship between the source and target entities, based solely on the input text.",
						},
					},
					"required": []any{"source_entity", "target_entity", "relationship_keywords", "relationship_description"},
				},
			},
		},
		"required": []any{"entities", "relationships"},
	}
}
