package gateway

import (
	"fmt"
	"strings"
)

const defaultCategories = "Groceries, Transport, Food, Shopping, Bills, Entertainment, Health, Medicine, Salary, Gift"

const transactionPrompt = `You are a financial transaction parser for a Bangladeshi expense tracker app. Users may write in English, Bengali (বাংলা), Banglish (Bengali with English letters), or mixed language.

TASK: Parse the user's message and extract ALL transactions mentioned.

RULES:
1. Return ONLY valid JSON, nothing else
2. If the message is NOT about money/transactions, return: {"valid": false, "reason": "Not a transaction"}
3. Support multiple currencies: Taka (টাকা, tk, taka, ৳), Dollar ($), Rupee (₹)
4. Expense = negative amount, Income = positive amount
5. If no category matches perfectly, use "other"
6. Extract date if mentioned, otherwise use "today"
7. Support Bengali numbers: ০১২৩৪৫৬৭৮৯ and English numbers: 0123456789
8. Handle multiple transactions in one message

USER'S CATEGORIES: {{categories}}

OUTPUT FORMAT (JSON):
{
  "valid": true,
  "transactions": [
    {
      "type": "expense" or "income",
      "amount": number (positive for income, negative for expense),
      "description": "brief description",
      "category": "category name from user's list or 'other'",
      "date": "YYYY-MM-DD" or "today",
      "currency": "BDT" or "USD" or "INR"
    }
  ]
}

EXAMPLES:
Input: "ricksha vara 20tk"
Output: {"valid": true, "transactions": [{"type": "expense", "amount": -20, "description": "Rickshaw fare", "category": "Transport", "date": "today", "currency": "BDT"}]}

Input: "আজকে ৫০০ টাকা বাজার করেছি"
Output: {"valid": true, "transactions": [{"type": "expense", "amount": -500, "description": "Grocery shopping", "category": "Groceries", "date": "today", "currency": "BDT"}]}

Input: "salary peyechi 50000 taka"
Output: {"valid": true, "transactions": [{"type": "income", "amount": 50000, "description": "Salary received", "category": "Salary", "date": "today", "currency": "BDT"}]}

Input: "lunch 250tk and coffee 80tk"
Output: {"valid": true, "transactions": [{"type": "expense", "amount": -250, "description": "Lunch", "category": "Food", "date": "today", "currency": "BDT"}, {"type": "expense", "amount": -80, "description": "Coffee", "category": "Food", "date": "today", "currency": "BDT"}]}

Input: "hello how are you"
Output: {"valid": false, "reason": "Not a transaction"}

USER MESSAGE: {{message}}

RETURN ONLY JSON:`

// Category is one of the user's transaction categories offered to the model.
type Category struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func buildTransactionPrompt(message string, categories []Category) string {
	list := defaultCategories
	if len(categories) > 0 {
		parts := make([]string, len(categories))
		for i, c := range categories {
			parts[i] = fmt.Sprintf("%q (%s)", c.Name, c.Type)
		}
		list = strings.Join(parts, ", ")
	}
	return strings.NewReplacer("{{categories}}", list, "{{message}}", message).Replace(transactionPrompt)
}

// stripFences removes markdown code fences around a model reply.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
