// Package vision asks a vision language model whether the person in an image
// is asleep.
//
// The Analyzer talks to any OpenAI-compatible chat completions endpoint, Groq
// by default, and turns the model's free-form reply into a classifier
// response with ParseReply.
package vision
