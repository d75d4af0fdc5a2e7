package main

import (
	"fmt"
	"time"
)

func printA() {
	fmt.Println("A")
}

func main() {
	for i := 0; i < 4; i++ {
		printA()
		time.Sleep(100 * time.Millisecond)
	}
}
