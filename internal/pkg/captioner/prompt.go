package captioner

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

const systemInstruction = "You are an expert fitness social media content creator. Analyze this gym/fitness photo and create an engaging Instagram caption."

var styleInstructions = map[models.CaptionStyle]string{
	models.StyleMotivational: "Create a motivational caption that inspires action and pushes people to overcome challenges. Use energetic language and focus on transformation and achievement.",
	models.StyleEducational:  "Create an educational caption that teaches something valuable about the exercise, technique, or fitness concept shown. Share knowledge and insights.",
	models.StyleFriendly:     "Create a friendly, conversational caption that feels like advice from a supportive friend. Use warm, approachable language and maybe share a personal insight.",
	models.StyleProfessional: "Create a professional caption that positions the trainer as a credible expert. Use clear, confident language and emphasise results and expertise.",
	models.StyleInspiring:    "Create an inspiring caption that tells a small story of progress and possibility. Use uplifting language that makes followers believe in their own journey.",
}

// StyleInstruction returns the tone paragraph for style.
func StyleInstruction(style models.CaptionStyle) string {
	if s, ok := styleInstructions[style]; ok {
		return s
	}
	return fmt.Sprintf("Create an engaging caption that matches the %s tone.", style)
}

// UserContext renders the trainer profile and photo details as labelled lines.
func UserContext(user *models.User, metadataContext string) string {
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	add("Trainer Bio", user.Bio)
	if user.FitnessFocus != "" {
		add("Fitness Focus", models.Humanize(user.FitnessFocus))
	}
	if user.TargetAudience != "" {
		add("Target Audience", models.Humanize(user.TargetAudience))
	}
	if user.BusinessType != "" {
		add("Business Type", models.Humanize(user.BusinessType))
	}
	add("Unique Approach", user.UniqueApproach)
	add("Brand Personality", user.BrandPersonality)
	add("Client Pain Points to Address", user.ClientPainPoints)
	add("Preferred Call-to-Action", user.CallToActionPreference)
	add("Location", user.Location)
	add("Photo Technical Details", metadataContext)

	return strings.Join(lines, "\n")
}

// BuildPrompt assembles the full instruction for one caption style.
func BuildPrompt(style models.CaptionStyle, user *models.User, metadataContext string, photo *models.Photo) string {
	var b strings.Builder

	b.WriteString(systemInstruction)
	b.WriteString("\n\n")
	if ctx := UserContext(user, metadataContext); ctx != "" {
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}
	b.WriteString(StyleInstruction(style))
	b.WriteString("\n\n")

	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- Caption should be %s in tone\n", style)
	b.WriteString("- Include 3-5 relevant hashtags\n")
	b.WriteString("- Keep it under 150 words\n")
	b.WriteString("- Make it specific to what you see in the image\n")
	b.WriteString("- Avoid generic fitness platitudes\n")
	b.WriteString("- Include a clear call-to-action related to the user's business\n")
	if words := user.WordsToAvoidList(); len(words) > 0 {
		fmt.Fprintf(&b, "- Avoid these words/phrases: %s\n", strings.Join(words, ", "))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Photo context: Title: %q", photo.Title)
	if desc := strings.TrimSpace(photo.Description); desc != "" {
		fmt.Fprintf(&b, ", Description: %q", desc)
	}
	b.WriteString("\n\n")
	b.WriteString("Return ONLY the caption text, no additional commentary.")
	return b.String()
}
