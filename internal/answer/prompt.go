package answer

import (
	"strings"

	"github.com/nadzzz/supportline/internal/retrieval"
)

// BuildPrompt assembles the generation prompt. The image description may be
// empty, and the template says so to the model by always including the line.
func BuildPrompt(query, ragContext, imageContext string) string {
	var sb strings.Builder
	sb.WriteString("Eres un asistente de soporte técnico experto para Etau Inc.\n\n")

	sb.WriteString("Usa el siguiente CONTEXTO DE LA BASE DE CONOCIMIENTO:\n")
	sb.WriteString("---\n")
	sb.WriteString(ragContext)
	sb.WriteString("\n---\n\n")

	sb.WriteString("El usuario tiene la siguiente PREGUNTA: \"" + query + "\"\n\n")

	sb.WriteString("Adicionalmente, el usuario envió una imagen que ha sido descrita como: \"" + imageContext + "\"\n")
	sb.WriteString("(Si la descripción de la imagen está vacía, el usuario no envió imagen o no se pudo describir.)\n\n")

	sb.WriteString("Basándote en toda esta información, proporciona una respuesta clara y directa para resolver el problema del usuario.\n")
	sb.WriteString("Si el contexto no es suficiente, indícalo amablemente.\n")
	return sb.String()
}

// JoinPassages joins passage texts with blank lines.
func JoinPassages(passages []retrieval.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}
