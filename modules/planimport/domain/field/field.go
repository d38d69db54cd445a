// Package field holds the canonical field ids, their value kinds and the header synonym
// tables of both import kinds.
package field

import "fmt"

type ID string

const (
	Phrase      ID = "phrase"
	Direction   ID = "direction"
	Cluster     ID = "cluster"
	WSFlag      ID = "ws_flag"
	Chars       ID = "chars"
	Tags        ID = "tags"
	Topic       ID = "topic"
	Period      ID = "period"
	Section     ID = "section"
	Author      ID = "author"
	PublishDate ID = "publish_date"
	URL         ID = "url"
	Keywords    ID = "keywords"
	Status      ID = "status"
	Comment     ID = "comment"
)

// Kind selects the coercion rule applied to a field's raw cell value.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	// KindFlag accepts yes/no tokens and falls back to an integer volume.
	KindFlag
	KindDate
	KindList
	KindURL
	// KindPerson is free text resolved against the user directory.
	KindPerson
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFlag:
		return "flag"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	case KindURL:
		return "url"
	case KindPerson:
		return "person"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Spec struct {
	ID       ID
	Kind     Kind
	Required bool
	// Synonyms are matched case-insensitively against trimmed header strings.
	Synonyms []string
}

type ImportKind string

const (
	KindQuery       ImportKind = "query"
	KindContentPlan ImportKind = "content_plan"
)

func ParseImportKind(s string) (ImportKind, error) {
	switch ImportKind(s) {
	case KindQuery, KindContentPlan:
		return ImportKind(s), nil
	case "content-plan", "plan":
		return KindContentPlan, nil
	}
	return "", fmt.Errorf("unknown import kind %q", s)
}

// Schema is the ordered field table of one import kind. Field order is the order in
// which the header mapper lets fields claim headers.
type Schema struct {
	Kind   ImportKind
	Fields []Spec
}

func (s Schema) Lookup(id ID) (Spec, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Spec{}, false
}

func (s Schema) Required() []ID {
	var out []ID
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.ID)
		}
	}
	return out
}

func (s Schema) IDs() []ID {
	out := make([]ID, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.ID
	}
	return out
}

var (
	directionSpec = Spec{ID: Direction, Kind: KindText, Synonyms: []string{"direction", "направление", "направление сайта"}}
	clusterSpec   = Spec{ID: Cluster, Kind: KindText, Synonyms: []string{"cluster", "кластер", "группа"}}
	charsSpec     = Spec{ID: Chars, Kind: KindInteger, Synonyms: []string{"chars", "characters", "символы", "кол-во символов", "объем", "объём"}}
	tagsSpec      = Spec{ID: Tags, Kind: KindList, Synonyms: []string{"tags", "теги", "метки"}}
)

var QuerySchema = Schema{
	Kind: KindQuery,
	Fields: []Spec{
		{ID: Phrase, Kind: KindText, Required: true, Synonyms: []string{"phrase", "query", "keyword", "фраза", "запрос", "ключевое слово", "ключ"}},
		directionSpec,
		clusterSpec,
		{ID: WSFlag, Kind: KindFlag, Synonyms: []string{"ws", "ws_flag", "wordstat", "frequency", "частотность", "частота", "вордстат"}},
		charsSpec,
		tagsSpec,
	},
}

var ContentPlanSchema = Schema{
	Kind: KindContentPlan,
	Fields: []Spec{
		{ID: Topic, Kind: KindText, Required: true, Synonyms: []string{"topic", "title", "тема", "заголовок", "название"}},
		{ID: Period, Kind: KindText, Synonyms: []string{"period", "month", "период", "месяц"}},
		{ID: Section, Kind: KindText, Synonyms: []string{"section", "раздел", "рубрика"}},
		directionSpec,
		clusterSpec,
		{ID: Author, Kind: KindPerson, Synonyms: []string{"author", "автор", "исполнитель", "копирайтер"}},
		{ID: PublishDate, Kind: KindDate, Synonyms: []string{"publish_date", "publish date", "date", "дата публикации", "дата"}},
		charsSpec,
		{ID: URL, Kind: KindURL, Synonyms: []string{"url", "link", "ссылка", "адрес"}},
		{ID: Keywords, Kind: KindList, Synonyms: []string{"keywords", "ключевые слова", "ключи"}},
		tagsSpec,
		{ID: Status, Kind: KindText, Synonyms: []string{"status", "статус"}},
		{ID: Comment, Kind: KindText, Synonyms: []string{"comment", "note", "комментарий", "примечание"}},
	},
}

func SchemaFor(kind ImportKind) (Schema, error) {
	switch kind {
	case KindQuery:
		return QuerySchema, nil
	case KindContentPlan:
		return ContentPlanSchema, nil
	}
	return Schema{}, fmt.Errorf("unknown import kind %q", kind)
}
