package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 100ms of 16kHz 16-bit mono audio.
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	serverURL := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	sessionKey := flag.String("session", "audio-"+time.Now().Format("150405"), "Session key")
	source := flag.String("source", "microphone", "Audio source: microphone or screen")
	realtime := flag.Bool("realtime", true, "Pace chunks in real time")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	c := &client{base: *serverURL, http: &http.Client{Timeout: 30 * time.Second}}
	sessionURL := "/v1/sessions/" + *sessionKey

	if err := c.post("/v1/sessions", map[string]string{"key": *sessionKey}, http.StatusCreated, http.StatusConflict); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	if err := c.post(sessionURL+"/sources/"+*source+"/start", nil, http.StatusOK, http.StatusCreated, http.StatusNoContent); err != nil {
		log.Fatalf("Failed to start source: %v", err)
	}
	log.Printf("Streaming audio: session=%s source=%s", *sessionKey, *source)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)
		if err := c.send(sessionURL+"/sources/"+*source+"/audio", audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send chunk %d: %v", chunkNum, err)
		}
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}
		if *realtime {
			time.Sleep(chunkIntervalMs * time.Millisecond)
		}
	}
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))

	if err := c.post(sessionURL+"/sources/"+*source+"/stop", nil, http.StatusNoContent); err != nil {
		log.Fatalf("Failed to stop source: %v", err)
	}

	var tr struct {
		Text string `json:"text"`
	}
	if err := c.get(sessionURL+"/transcript", &tr); err != nil {
		log.Fatalf("Failed to fetch transcript: %v", err)
	}
	fmt.Println(tr.Text)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(path string, body any, accept ...int) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expect(resp, accept...)
}

func (c *client) send(path string, chunk []byte) error {
	resp, err := c.http.Post(c.base+path, "application/octet-stream", bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expect(resp, http.StatusAccepted)
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusOK); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func expect(resp *http.Response, accept ...int) error {
	for _, code := range accept {
		if resp.StatusCode == code {
			return nil
		}
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
