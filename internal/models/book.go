package models

import "fmt"

// Book is a single recommendation discovered on GoodReads. JSON field names
// match what the web frontend expects.
type Book struct {
	Title         string  `json:"Name"`
	Author        string  `json:"Author"`
	Rating        float64 `json:"Rating"`
	Votes         int     `json:"Votes"`
	Overview      string  `json:"Overview"`
	ImageURL      string  `json:"Image_Link"`
	SeedTitle     string  `json:"Base_Book"`
	Status        string  `json:"Status"`
	PageCount     int     `json:"Page_Count,omitempty"`
	PublishedDate string  `json:"Published_Date,omitempty"`
}

// AuthorAndTitle returns the un-normalized "Author - Title" identity string.
func (b Book) AuthorAndTitle() string {
	return fmt.Sprintf("%s - %s", b.Author, b.Title)
}

// LibraryItem is one selectable entry in the sidebar: an "Author - Title"
// string from the user's Readarr library plus its selection state.
type LibraryItem struct {
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

// SidebarUpdate is the payload pushed to clients whenever the library
// listing changes or fails to load.
type SidebarUpdate struct {
	Status  string `json:"Status"`
	Code    any    `json:"Code"`
	Data    any    `json:"Data"`
	Running bool   `json:"Running"`
}

// Toast is a short user-facing notice.
type Toast struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
