// Package livevoice is a client for bidirectional realtime voice and text
// sessions with a generative model service.
//
// A Conn is one authenticated transport connection. It carries JSON
// envelopes whose binary payloads are hex encoded, and it serializes writes
// so any number of goroutines may Send. The default transport is a
// WebSocket; package webrtc provides a data channel alternative.
//
// A Streamer owns at most one Conn and runs one exchange at a time. Each
// exchange is a Stream with an ordered event channel:
//
//	s, err := livevoice.NewStreamer(livevoice.Config{
//		Endpoint:   livevoice.DefaultEndpoint,
//		Model:      "gemini-2.0-flash-exp",
//		Credential: livevoice.APIKey(os.Getenv("GOOGLE_API_KEY")),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Disconnect()
//
//	stream, err := s.Speak(ctx, "Say hello")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for ev := range stream.Events() {
//		switch ev.Kind {
//		case livevoice.EventTextFragment:
//			fmt.Print(ev.Text)
//		case livevoice.EventError:
//			log.Printf("%s: %v", ev.ErrKind, ev.Err)
//		}
//	}
//
// Three exchange shapes are supported. Transcribe streams audio chunks and
// ends when the service completes its turn. Speak sends one text turn and
// ends the same way. Converse streams audio in and model output back until
// the input ends, the peer hangs up, or the caller closes the stream.
//
// Every stream ends with exactly one EventClosed. When the stream failed it
// is preceded by an EventError carrying the same error; ErrorKindOf
// classifies it.
package livevoice
