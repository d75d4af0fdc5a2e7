package main

import "fmt"

var count int

func three() {
	count++
	fmt.Println("three", count)
}

func two() {
	three()
}

func one() {
	two()
}

func main() {
	one()
}
