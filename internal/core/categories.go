package core

// DefaultCategories is the catalogue a fresh store starts with.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Food & Dining", Type: "expense", Color: "#EF4444", Icon: "🍽️"},
		{Name: "Transportation", Type: "expense", Color: "#F59E0B", Icon: "🚗"},
		{Name: "Shopping", Type: "expense", Color: "#8B5CF6", Icon: "🛍️"},
		{Name: "Entertainment", Type: "expense", Color: "#EC4899", Icon: "🎬"},
		{Name: "Bills & Utilities", Type: "expense", Color: "#10B981", Icon: "💡"},
		{Name: "Healthcare", Type: "expense", Color: "#F97316", Icon: "🏥"},
		{Name: "Travel", Type: "expense", Color: "#06B6D4", Icon: "✈️"},
		{Name: "Salary", Type: "income", Color: "#22C55E", Icon: "💼"},
		{Name: "Freelance", Type: "income", Color: "#84CC16", Icon: "💻"},
		{Name: "Investment", Type: "income", Color: "#6366F1", Icon: "📈"},
	}
}
