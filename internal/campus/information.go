package campus

import (
	"fmt"
	"strings"
)

// Article is the leaf of the bibliography tree.
type Article struct {
	ID    string `json:"article_id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Section groups articles.
type Section struct {
	Title    string    `json:"section_title"`
	Articles []Article `json:"articles"`
}

// Chapter groups sections.
type Chapter struct {
	Title    string    `json:"chapter_title"`
	Sections []Section `json:"sections"`
}

// Book is a handbook or textbook.
type Book struct {
	Title    string    `json:"book_title"`
	Chapters []Chapter `json:"chapters"`
}

// Bibliography is the on-disk book collection.
type Bibliography struct {
	Books []Book `json:"books"`
}

// Club is a student organisation.
type Club struct {
	ID              string `json:"club_id"`
	Name            string `json:"club_name"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	RecruitmentInfo string `json:"recruitment_info"`
}

// ResearchArea classifies an advisor.
type ResearchArea struct {
	Level1 string   `json:"level_1"`
	Level2 string   `json:"level_2"`
	Tags   []string `json:"tags,omitempty"`
}

// Advisor is a faculty member.
type Advisor struct {
	ID                 string         `json:"advisor_id"`
	Name               string         `json:"name"`
	Email              string         `json:"email"`
	ResearchArea       ResearchArea   `json:"research_area"`
	RepresentativeWork []string       `json:"representative_work,omitempty"`
	Preferences        map[string]any `json:"preferences,omitempty"`
}

// LibraryBook is a circulating library item.
type LibraryBook struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	CallNumber string `json:"call_number"`
	Status     string `json:"status"`
	Category   string `json:"category"`
	Location   string `json:"location"`
}

// CampusData is the on-disk directory of clubs, advisors and library books.
type CampusData struct {
	Clubs        []Club        `json:"clubs"`
	Advisors     []Advisor     `json:"advisors"`
	LibraryBooks []LibraryBook `json:"library_books,omitempty"`
}

// DefaultBibliography is used when no bibliography file is available.
func DefaultBibliography() Bibliography {
	return Bibliography{Books: []Book{{
		Title: "Introduction to Computer Science",
		Chapters: []Chapter{{
			Title: "Chapter 1: Fundamentals",
			Sections: []Section{{
				Title: "Section 1.1: Basic Concepts",
				Articles: []Article{{
					ID:    "cs_intro_001",
					Title: "What is Computer Science?",
					Body:  "Computer science is the study of computational systems and the design of computer systems and their applications.",
				}},
			}},
		}},
	}}}
}

// DefaultCampusData is used when no campus data file is available.
func DefaultCampusData() CampusData {
	return CampusData{
		Clubs: []Club{{
			ID: "C001", Name: "Computer Science Club", Category: "Academic",
			Description:     "A club for computer science enthusiasts",
			RecruitmentInfo: "Open to all students interested in computer science",
		}},
		Advisors: []Advisor{{
			ID: "T001", Name: "Dr. John Smith", Email: "john.smith@university.edu",
			ResearchArea: ResearchArea{
				Level1: "Computer Science", Level2: "Artificial Intelligence",
				Tags: []string{"Machine Learning", "Natural Language Processing"},
			},
			RepresentativeWork: []string{"AI in Education", "NLP Applications"},
		}},
	}
}

// Information is a read-only lookup service over books and campus data.
// Its data never changes after load, so it carries no lock.
type Information struct {
	bib  Bibliography
	data CampusData
}

// NewInformation wraps loaded data.
func NewInformation(bib Bibliography, data CampusData) *Information {
	return &Information{bib: bib, data: data}
}

func (in *Information) book(title string) (*Book, bool) {
	for i := range in.bib.Books {
		if strings.EqualFold(in.bib.Books[i].Title, title) {
			return &in.bib.Books[i], true
		}
	}
	return nil, false
}

func (b *Book) chapter(title string) (*Chapter, bool) {
	for i := range b.Chapters {
		if strings.EqualFold(b.Chapters[i].Title, title) {
			return &b.Chapters[i], true
		}
	}
	return nil, false
}

// ListChapters names the chapters of a book.
func (in *Information) ListChapters(bookTitle string) ToolResult {
	if bookTitle == "" {
		return Failure("Book title is required.")
	}
	b, ok := in.book(bookTitle)
	if !ok {
		return Failure("Book '%s' not found.", bookTitle)
	}
	titles := make([]string, 0, len(b.Chapters))
	for _, c := range b.Chapters {
		titles = append(titles, c.Title)
	}
	msg := fmt.Sprintf("Book '%s' has no chapters.", bookTitle)
	if len(titles) > 0 {
		msg = fmt.Sprintf("Book '%s' contains the following chapters: %s.", bookTitle, strings.Join(titles, ", "))
	}
	return Success(msg, map[string]any{"book_title": b.Title, "chapters": titles})
}

// ListSections names the sections of a chapter.
func (in *Information) ListSections(bookTitle, chapterTitle string) ToolResult {
	if bookTitle == "" || chapterTitle == "" {
		return Failure("Both book title and chapter title are required.")
	}
	b, ok := in.book(bookTitle)
	if !ok {
		return Failure("Book '%s' not found.", bookTitle)
	}
	c, ok := b.chapter(chapterTitle)
	if !ok {
		return Failure("Chapter '%s' not found in book '%s'.", chapterTitle, bookTitle)
	}
	titles := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		titles = append(titles, s.Title)
	}
	msg := fmt.Sprintf("Chapter '%s' in book '%s' has no sections.", chapterTitle, bookTitle)
	if len(titles) > 0 {
		msg = fmt.Sprintf("Chapter '%s' in book '%s' contains the following sections: %s.", chapterTitle, bookTitle, strings.Join(titles, ", "))
	}
	return Success(msg, map[string]any{"book_title": b.Title, "chapter_title": c.Title, "sections": titles})
}

// ListArticles names the articles of a section.
func (in *Information) ListArticles(bookTitle, chapterTitle, sectionTitle string) ToolResult {
	if bookTitle == "" || chapterTitle == "" || sectionTitle == "" {
		return Failure("Book title, chapter title, and section title are all required.")
	}
	b, ok := in.book(bookTitle)
	if !ok {
		return Failure("Book '%s' not found.", bookTitle)
	}
	c, ok := b.chapter(chapterTitle)
	if !ok {
		return Failure("Chapter '%s' not found in book '%s'.", chapterTitle, bookTitle)
	}
	for _, s := range c.Sections {
		if !strings.EqualFold(s.Title, sectionTitle) {
			continue
		}
		titles := make([]string, 0, len(s.Articles))
		for _, a := range s.Articles {
			titles = append(titles, a.Title)
		}
		msg := fmt.Sprintf("Section '%s' has no articles.", sectionTitle)
		if len(titles) > 0 {
			msg = fmt.Sprintf("Section '%s' contains the following articles: %s.", sectionTitle, strings.Join(titles, ", "))
		}
		return Success(msg, map[string]any{
			"book_title": b.Title, "chapter_title": c.Title, "section_title": s.Title, "articles": titles,
		})
	}
	return Failure("Section '%s' not found in chapter '%s'.", sectionTitle, chapterTitle)
}

// ViewArticle finds an article by title (case-insensitive) or id.
func (in *Information) ViewArticle(identifier, by string) ToolResult {
	if identifier == "" || by == "" {
		return Failure("Both identifier and search method ('by') are required.")
	}
	if by != "title" && by != "id" {
		return Failure("Search method must be either 'title' or 'id'.")
	}
	for _, b := range in.bib.Books {
		for _, c := range b.Chapters {
			for _, s := range c.Sections {
				for _, a := range s.Articles {
					if (by == "title" && strings.EqualFold(a.Title, identifier)) || (by == "id" && a.ID == identifier) {
						return Success(fmt.Sprintf("Article: %s\n\n%s", a.Title, a.Body), map[string]any{
							"article_id": a.ID, "title": a.Title, "body": a.Body,
						})
					}
				}
			}
		}
	}
	return Failure("Article with %s '%s' not found.", by, identifier)
}

// ListByCategory lists clubs by category or advisors by research area.
// For advisors, level selects level_1 or level_2; empty level matches any
// level or tag by substring.
func (in *Information) ListByCategory(category, entityType, level string) ToolResult {
	if category == "" || entityType == "" {
		return Failure("Both category and entity_type are required.")
	}
	switch entityType {
	case "club":
		names := []string{}
		for _, c := range in.data.Clubs {
			if strings.EqualFold(c.Category, category) {
				names = append(names, c.Name)
			}
		}
		msg := fmt.Sprintf("No clubs found in category '%s'.", category)
		if len(names) > 0 {
			msg = fmt.Sprintf("Clubs in category '%s': %s.", category, strings.Join(names, ", "))
		}
		return Success(msg, map[string]any{"clubs": names})
	case "advisor":
		found := []map[string]any{}
		var sb strings.Builder
		for _, a := range in.data.Advisors {
			if !advisorMatches(a.ResearchArea, category, level) {
				continue
			}
			found = append(found, map[string]any{
				"name": a.Name, "research_area": a.ResearchArea, "representative_work": a.RepresentativeWork,
			})
			fmt.Fprintf(&sb, "\n- %s (Research: %s)", a.Name, orNA(a.ResearchArea.Level2))
		}
		if len(found) == 0 {
			return Success(fmt.Sprintf("No advisors found in category '%s'.", category), map[string]any{"advisors": found})
		}
		return Success(fmt.Sprintf("Found %d advisor(s) in category '%s':%s", len(found), category, sb.String()),
			map[string]any{"advisors": found})
	default:
		return Failure("Entity type must be either 'club' or 'advisor'.")
	}
}

func advisorMatches(ra ResearchArea, category, level string) bool {
	switch level {
	case "level_1":
		return strings.EqualFold(ra.Level1, category)
	case "level_2":
		return strings.EqualFold(ra.Level2, category)
	case "":
		c := strings.ToLower(category)
		if strings.Contains(strings.ToLower(ra.Level1), c) || strings.Contains(strings.ToLower(ra.Level2), c) {
			return true
		}
		for _, t := range ra.Tags {
			if strings.Contains(strings.ToLower(t), c) {
				return true
			}
		}
	}
	return false
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// QueryByIdentifier returns a club or advisor by name or id.
func (in *Information) QueryByIdentifier(identifier, by, entityType string) ToolResult {
	if identifier == "" || by == "" || entityType == "" {
		return Failure("Identifier, search method ('by'), and entity_type are all required.")
	}
	if by != "name" && by != "id" {
		return Failure("Search method must be either 'name' or 'id'.")
	}
	match := func(name, id string) bool {
		return (by == "name" && strings.EqualFold(name, identifier)) || (by == "id" && id == identifier)
	}
	switch entityType {
	case "club":
		for _, c := range in.data.Clubs {
			if match(c.Name, c.ID) {
				msg := fmt.Sprintf("Club Details:\nName: %s\nID: %s\nCategory: %s\nDescription: %s\nRecruitment Info: %s",
					c.Name, c.ID, c.Category, c.Description, c.RecruitmentInfo)
				return Success(msg, map[string]any{
					"club_id": c.ID, "club_name": c.Name, "category": c.Category,
					"description": c.Description, "recruitment_info": c.RecruitmentInfo,
				})
			}
		}
		return Failure("Club with %s '%s' not found.", by, identifier)
	case "advisor":
		for _, a := range in.data.Advisors {
			if match(a.Name, a.ID) {
				msg := fmt.Sprintf("Advisor Details:\nName: %s\nID: %s\nEmail: %s\nResearch Area: %s\nRepresentative Work: %s",
					a.Name, a.ID, a.Email, a.ResearchArea.Level2, strings.Join(a.RepresentativeWork, ", "))
				return Success(msg, map[string]any{
					"advisor_id": a.ID, "name": a.Name, "email": a.Email,
					"research_area": a.ResearchArea, "representative_work": a.RepresentativeWork,
				})
			}
		}
		return Failure("Advisor with %s '%s' not found.", by, identifier)
	default:
		return Failure("Entity type must be either 'club' or 'advisor'.")
	}
}

func bookLine(b LibraryBook, withCategory bool) string {
	mark := "[Checked Out]"
	if b.Status == "Available" {
		mark = "[Available]"
	}
	if withCategory {
		return fmt.Sprintf("\n- %s \"%s\" by %s (%s, Call Number: %s)", mark, b.Title, b.Author, b.Category, b.CallNumber)
	}
	return fmt.Sprintf("\n- %s \"%s\" by %s (Call Number: %s)", mark, b.Title, b.Author, b.CallNumber)
}

func bookData(b LibraryBook) map[string]any {
	return map[string]any{
		"title": b.Title, "author": b.Author, "call_number": b.CallNumber,
		"status": b.Status, "category": b.Category, "location": b.Location,
	}
}

// ListBooksByCategory lists library books of one category.
func (in *Information) ListBooksByCategory(category string) ToolResult {
	if category == "" {
		return Failure("Category is required.")
	}
	if in.data.LibraryBooks == nil {
		return Failure("Library books data not available.")
	}
	found := []map[string]any{}
	var sb strings.Builder
	for _, b := range in.data.LibraryBooks {
		if strings.EqualFold(b.Category, category) {
			found = append(found, bookData(b))
			sb.WriteString(bookLine(b, false))
		}
	}
	if len(found) == 0 {
		return Success(fmt.Sprintf("No books found in category '%s'.", category), map[string]any{"books": found})
	}
	return Success(fmt.Sprintf("Found %d book(s) in category '%s':%s", len(found), category, sb.String()), map[string]any{"books": found})
}

// SearchBooks matches library books by title or author substring.
func (in *Information) SearchBooks(query, searchType string) ToolResult {
	if query == "" {
		return Failure("Search query is required.")
	}
	if searchType == "" {
		searchType = "title"
	}
	if searchType != "title" && searchType != "author" {
		return Failure("Search type must be either 'title' or 'author'.")
	}
	if in.data.LibraryBooks == nil {
		return Failure("Library books data not available.")
	}
	q := strings.ToLower(query)
	found := []map[string]any{}
	var sb strings.Builder
	for _, b := range in.data.LibraryBooks {
		field := b.Title
		if searchType == "author" {
			field = b.Author
		}
		if strings.Contains(strings.ToLower(field), q) {
			found = append(found, bookData(b))
			sb.WriteString(bookLine(b, true))
		}
	}
	if len(found) == 0 {
		return Success(fmt.Sprintf("No books found matching '%s' in %s.", query, searchType), map[string]any{"books": found})
	}
	return Success(fmt.Sprintf("Found %d book(s) matching '%s' in %s:%s", len(found), query, searchType, sb.String()),
		map[string]any{"books": found})
}
