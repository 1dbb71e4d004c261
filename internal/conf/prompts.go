package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Classifier             ChatPrompt  `yaml:"classifier"`
	AudioSummaryDirect     ChatPrompt  `yaml:"audio_summary_direct"`
	AudioSummaryStructured ChatPrompt  `yaml:"audio_summary_structured"`
	AudioScript            ChatPrompt  `yaml:"audio_script"`
	Image                  ImagePrompt `yaml:"image"`
	LastFromMeTip          string      `yaml:"last_from_me_tip"`

	// Source is the file the prompts were read from, empty for built-in defaults
	Source string `yaml:"-"`
}

// ChatPrompt is a system/user template pair
type ChatPrompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// ImagePrompt contains the vision instruction
type ImagePrompt struct {
	Instruction string `yaml:"instruction"`
}

// LoadPromptsConfig loads prompts configuration from YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/summi-worker/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		if b, err := os.ReadFile(p); err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read prompts file %s", configPath)
		}
		return DefaultPromptsConfig(), nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	config.fillDefaults()
	config.Source = loadedPath

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&c.Classifier.System, defaults.Classifier.System)
	fill(&c.Classifier.User, defaults.Classifier.User)
	fill(&c.AudioSummaryDirect.System, defaults.AudioSummaryDirect.System)
	fill(&c.AudioSummaryDirect.User, defaults.AudioSummaryDirect.User)
	fill(&c.AudioSummaryStructured.System, defaults.AudioSummaryStructured.System)
	fill(&c.AudioSummaryStructured.User, defaults.AudioSummaryStructured.User)
	fill(&c.AudioScript.System, defaults.AudioScript.System)
	fill(&c.AudioScript.User, defaults.AudioScript.User)
	fill(&c.Image.Instruction, defaults.Image.Instruction)
	fill(&c.LastFromMeTip, defaults.LastFromMeTip)
}

// Render replaces {{key}} placeholders in tmpl
func Render(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

const audioSummarySystem = "Voce resume transcricoes de audio em portugues. Seja fiel ao conteudo, objetivo e jamais invente informacoes.\nTemas URGENTES: {{urgent_topics}}\nTemas IMPORTANTES: {{important_topics}}"

// DefaultPromptsConfig returns the built-in prompts
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Classifier: ChatPrompt{
			System: "Voce e um assistente de WhatsApp. Responda SOMENTE em JSON valido.",
			User: `Analise a conversa abaixo e diga se eu preciso responder agora ou posso esperar, definindo a prioridade de resposta.

Muitas mensagens (mais de 5) podem significar urgencia.
Seja criterioso: na duvida, classifique para menos.
Se a ultima mensagem da conversa foi enviada por mim, a prioridade e "0", a menos que o conteudo deixe claro que o assunto continua em aberto.

Palavras Chaves de temas Urgentes: {{urgent_topics}}
Palavras Chaves de temas Importantes: {{important_topics}}
Palavras Chaves de temas para Ignorar: {{ignore_topics}}

Escala de prioridade (0 a 3):
- 3: urgente, precisa ser respondido o quanto antes
- 2: precisa ser respondido hoje
- 1: precisa responder, mas nao hoje
- 0: nao precisa responder

Formato EXATO de saida (JSON):
{"id": "123", "Prioridade": "2", "Nome": "(nome de quem mandou)", "Telefone": "+(telefone)", "Contexto": "(resultado da analise com no maximo 250 caracteres)", "Horario": "(horario da primeira mensagem)"}

{{last_from_me_hint}}
Id: {{conversation_id}}
Conversa: {{conversation}}
Quem Mandou: {{name}}
Telefone: {{phone}}
Primeira Mensagem: {{first_message}}
Ultima Mensagem: {{last_message}}`,
		},
		AudioSummaryDirect: ChatPrompt{
			System: audioSummarySystem,
			User: `Faca um resumo direto e curto da transcricao abaixo, destacando o assunto principal e qualquer ponto que se conecte com os temas urgentes ou importantes do usuario.
Se houver uma acao claramente pedida, mencione isso de forma natural no proprio resumo.
Nao use blocos, titulos ou listas nesta modalidade.

Transcricao:
{{transcript}}`,
		},
		AudioSummaryStructured: ChatPrompt{
			System: audioSummarySystem,
			User: `Organize a saida em blocos curtos de WhatsApp, usando exatamente estes titulos quando houver conteudo:
*Assunto principal*
*Assuntos discutidos*
*Atividades a serem realizadas*

Regras:
- Em 'Assunto principal', traga o foco central da conversa, priorizando o que se relaciona com os temas importantes ou urgentes do usuario.
- Em 'Assuntos discutidos', liste apenas os topicos realmente tratados na transcricao.
- Inclua 'Atividades a serem realizadas' somente se houver acao clara como responder, enviar algo, cobrar, agendar, revisar, mandar relatorio ou e-mail.
- Se nao houver acao clara, omita completamente o bloco 'Atividades a serem realizadas'.
- Nunca escreva que nao ha acao identificada.
- Nunca invente nomes, prazos, tarefas ou contextos ausentes.

Transcricao:
{{transcript}}`,
		},
		AudioScript: ChatPrompt{
			System: "Voce escreve um roteiro curto, falado, para transcricao em audio. Use apenas as informacoes fornecidas.",
			User:   "Reescreva de forma fluida o resumo abaixo, pois ele sera convertido em audio para alguem que esta no transito.\n\nMensagem: {{digest}}\n\nInicie com: Summi (le-se Sami) da Hora: ...\nIgnore os numeros dos contatos, leve apenas o nome e a demanda.\nNao pareca uma IA (sem 'Claro', sem 'Aqui esta', sem despedidas).\nRetorne apenas o texto final.",
		},
		Image: ImagePrompt{
			Instruction: "Descreva a imagem de forma clara e objetiva, nada alem disso. A descricao sera usada por outra IA para classificar prioridade de conversa.",
		},
		LastFromMeTip: "Observacao: a ultima mensagem desta conversa foi enviada por mim.",
	}
}
