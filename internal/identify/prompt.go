package identify

import (
	"fmt"

	"github.com/kalambet/leafwise/internal/engine"
	"github.com/kalambet/leafwise/internal/scan"
)

const jsonOnly = ` Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.`

const identifySystemPrompt = `You are an expert botanist. Identify the plant in the photo.` + jsonOnly + `

Rules:
- Give the most widely used English common name and the scientific name without author.
- confidence is your certainty between 0 and 1.
- If the photo does not show a plant, return empty names and confidence 0.`

const detailsSystemPrompt = `You are an expert botanist and horticulturalist.` + jsonOnly + `

Rules:
- careTips covers watering, light, temperature, soil, fertilizer and pruning, one topic per line.
- careSummary is two or three plain sentences a beginner can follow.
- plantType is a category such as Indoor, Outdoor, Tree, Shrub or Flower.
- toxicity states the risk to humans and pets, or that the plant is non-toxic.
- Leave a field empty rather than guessing.`

const relatedSystemPrompt = `You are a botanical expert. Suggest other plants that look similar to the given plant or are often found in the same family or environment.` + jsonOnly + `

Rules:
- Suggest between 3 and 5 plants.
- Never repeat the given plant.
- confidence is how similar the plant looks, between 0 and 1.`

const diagnoseSystemPrompt = `You are an expert plant pathologist. Analyze the photo for signs of disease, pests or nutrient deficiencies.` + jsonOnly + `

Rules:
- For each issue give its name, the symptoms visible in the photo, and step-by-step treatment with organic and chemical options where they apply.
- If the plant looks healthy, set isHealthy to true and return an empty issues array.`

func imageMessage(text string, img scan.Image) engine.Message {
	return engine.Message{
		Role:    "user",
		Content: text,
		Images:  []engine.Image{{MediaType: img.MediaType, Data: img.Base64()}},
	}
}

func plantLabel(commonName, scientificName string) string {
	switch {
	case commonName != "" && scientificName != "" && commonName != scientificName:
		return fmt.Sprintf("%s (%s)", commonName, scientificName)
	case commonName != "":
		return commonName
	default:
		return scientificName
	}
}

// buildIdentifyPrompt asks the backend to name the plant from the photo alone.
func buildIdentifyPrompt(img scan.Image) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: identifySystemPrompt},
		imageMessage("What plant is this?", img),
	}
}

func buildDetailsPrompt(img scan.Image, commonName, scientificName string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: detailsSystemPrompt},
		imageMessage(fmt.Sprintf("The plant in this photo has been identified as %s. Describe it and how to care for it.", plantLabel(commonName, scientificName)), img),
	}
}

func buildRelatedPrompt(img scan.Image, commonName, scientificName string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: relatedSystemPrompt},
		imageMessage(fmt.Sprintf("Plant: %s", plantLabel(commonName, scientificName)), img),
	}
}

func buildDiagnosePrompt(img scan.Image) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: diagnoseSystemPrompt},
		imageMessage("Is this plant healthy?", img),
	}
}

func str(desc string) *engine.Schema {
	return &engine.Schema{Type: "string", Description: desc}
}

func num(desc string) *engine.Schema {
	return &engine.Schema{Type: "number", Description: desc}
}

func identifySchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"commonName":     str("English common name"),
			"scientificName": str("Scientific name without author"),
			"confidence":     num("Certainty between 0 and 1"),
		},
		Required: []string{"commonName", "scientificName", "confidence"},
	}
}

func detailsSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"scientificName":  str("Scientific name without author"),
			"careTips":        str("Detailed care instructions"),
			"careSummary":     str("Short beginner-friendly care summary"),
			"plantType":       str("Category, e.g. Indoor, Outdoor, Tree, Shrub, Flower"),
			"toxicity":        str("Toxicity to humans and pets"),
			"growthHabit":     str("Growth habit, e.g. Bushy, Vining, Upright"),
			"origin":          str("Native region"),
			"floweringPeriod": str("When it flowers, if it does"),
			"propagationTips": str("How to propagate it"),
			"funFact":         str("An interesting fact"),
		},
		Required: []string{"careTips", "careSummary"},
	}
}

func relatedSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"suggestions": {
				Type: "array",
				Items: &engine.Schema{
					Type: "object",
					Properties: map[string]*engine.Schema{
						"commonName":     str("English common name"),
						"scientificName": str("Scientific name without author"),
						"confidence":     num("Visual similarity between 0 and 1"),
					},
					Required: []string{"commonName", "scientificName"},
				},
			},
		},
		Required: []string{"suggestions"},
	}
}

func diagnoseSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"isHealthy": {Type: "boolean", Description: "Whether the plant appears healthy"},
			"issues": {
				Type: "array",
				Items: &engine.Schema{
					Type: "object",
					Properties: map[string]*engine.Schema{
						"issue":       str("Name of the disease, pest or deficiency"),
						"description": str("Symptoms visible in the photo"),
						"treatment":   str("Step-by-step treatment"),
					},
					Required: []string{"issue", "description", "treatment"},
				},
			},
		},
		Required: []string{"isHealthy", "issues"},
	}
}
