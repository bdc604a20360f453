package mcpserver

// NoteFormatContract describes how notes are stored so LLM consumers create
// and update them consistently.
const NoteFormatContract = `# Ansuz Note Format

Notes form a tree. Every note has an opaque id assigned on creation, a title,
Markdown content and an optional parent id.

## Fields

- **id**: returned by create_note. Never invent ids; take them from list_notes,
  get_tree or search_notes.
- **title**: plain text, one line. A blank title is stored as "Untitled".
- **content**: Markdown. Do not repeat the title as a heading unless it adds
  something. YAML frontmatter is allowed but not required.
- **parent_id**: id of an existing note, or empty for a top-level note.
  Parents cannot be changed after creation.

## Rules

1. Deleting a note deletes everything below it. Check get_tree first.
2. update_note replaces the whole content. Read the note before editing it.
3. Tags are written inline as ` + "`#tag`" + ` (letters first, then letters,
   digits, ` + "`_ - /`" + `) or as a frontmatter ` + "`tags:`" + ` list.
4. Encoding is UTF-8.

## Example

` + "```" + `markdown
Packing list for the trip. #travel

- boots
- map
` + "```" + `
`
